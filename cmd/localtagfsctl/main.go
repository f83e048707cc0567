// Command localtagfsctl is a smoke-test harness for the adapter's four
// operations. It wires an in-memory fake indexer session (the same fake
// every package's own tests use) instead of a real triple-store
// connection, loads one canned fixture (the music/songs listing, holding a
// single demo song; every other statement gets no rows), and drives
// browse/get_metadata/set_metadata/destroy_object against it from the
// command line — the
// structural analogue of the teacher's own ingest CLI, but exercising
// the read/write surface rather than populating a database.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/alexander-bruun/localtagfs/internal/browse"
	"github.com/alexander-bruun/localtagfs/internal/host"
	"github.com/alexander-bruun/localtagfs/internal/indexer"
	"github.com/alexander-bruun/localtagfs/internal/keyreg"
	"github.com/alexander-bruun/localtagfs/internal/metaops"
	"github.com/alexander-bruun/localtagfs/internal/objectid"
	"github.com/alexander-bruun/localtagfs/internal/qcache"
)

var (
	flagObjectID  string
	flagRecursive bool
	flagOffset    int
	flagCount     int
	flagKeys      []string
	flagSetValue  string
)

// demoLeafURI and demoLeafID are the fake indexer's one canned song, used
// as the default --id for the get/set/destroy subcommands so a bare
// invocation demonstrates something rather than erroring on a missing
// flag.
const demoLeafURI = "file:///MyDocs/Music/demo.mp3"

var demoLeafID = objectid.Encode([]string{"music", "songs", demoLeafURI})

var rootCmd = &cobra.Command{
	Use:   "localtagfsctl",
	Short: "Drive the adapter's browse/metadata/destroy operations against a fake indexer",
}

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Run a browse call and print every emitted tick",
	RunE:  runBrowse,
}

var getCmd = &cobra.Command{
	Use:   "get",
	Short: "Run a get_metadata call for one object id",
	RunE:  runGet,
}

var setCmd = &cobra.Command{
	Use:   "set",
	Short: "Set the title key on one leaf object id",
	RunE:  runSet,
}

var destroyCmd = &cobra.Command{
	Use:   "destroy",
	Short: "Destroy one leaf object id",
	RunE:  runDestroy,
}

func init() {
	browseCmd.Flags().StringVar(&flagObjectID, "id", objectid.Encode(nil), "Object id to browse")
	getCmd.Flags().StringVar(&flagObjectID, "id", demoLeafID, "Object id to fetch metadata for")
	setCmd.Flags().StringVar(&flagObjectID, "id", demoLeafID, "Object id to write metadata to")
	destroyCmd.Flags().StringVar(&flagObjectID, "id", demoLeafID, "Object id to destroy")

	browseCmd.Flags().BoolVar(&flagRecursive, "recursive", false, "Browse recursively")
	browseCmd.Flags().IntVar(&flagOffset, "offset", 0, "Result window offset")
	browseCmd.Flags().IntVar(&flagCount, "count", 0, "Result window count (0 means all)")
	browseCmd.Flags().StringSliceVar(&flagKeys, "keys", []string{keyreg.KeyTitle}, "Metadata keys to project")
	getCmd.Flags().StringSliceVar(&flagKeys, "keys", []string{keyreg.KeyTitle, keyreg.KeyArtist}, "Metadata keys to fetch")
	setCmd.Flags().StringVar(&flagSetValue, "title", "Renamed Title", "New title value to write")

	rootCmd.AddCommand(browseCmd, getCmd, setCmd, destroyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "err", err)
		os.Exit(1)
	}
}

// demoSession returns a fake indexer session pre-loaded with one fixture:
// the statement a music/songs listing of the title key sends, answered
// with one leaf song. Any other statement (another branch, or a listing
// of other keys) gets no rows.
func demoSession() *indexer.Fake {
	fake := indexer.NewFake()
	fake.AddFixture(
		"SELECT ?v0 ?v1 ?v2 WHERE {?o a nmm:MusicPiece . ?o nie:url ?v0 . OPTIONAL {?o a ?v1} . OPTIONAL {?o nie:title ?v2}}",
		[][]string{{demoLeafURI, "nmm:MusicPiece", "Demo Song"}},
		nil,
	)
	return fake
}

func demoDeps(fake *indexer.Fake) (*browse.Orchestrator, metaops.Deps) {
	orch := browse.NewOrchestrator(fake, nil)
	meta := metaops.Deps{Session: fake}
	return orch, meta
}

func runBrowse(_ *cobra.Command, _ []string) error {
	fake := demoSession()
	orch, _ := demoDeps(fake)

	count := flagCount
	if count == 0 {
		count = browse.All
	}

	var ticks []host.BrowseResult
	id := orch.Browse(context.Background(), flagObjectID, flagRecursive, nil, "", flagKeys, flagOffset, count,
		func(res host.BrowseResult) {
			ticks = append(ticks, res)
		})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := orch.Wait(ctx, id); err != nil {
		return fmt.Errorf("wait for browse: %w", err)
	}

	return printJSON(ticks)
}

func runGet(_ *cobra.Command, _ []string) error {
	fake := demoSession()
	_, meta := demoDeps(fake)

	done := make(chan struct{})
	var result map[string]qcache.Metadata
	var opErr error
	meta.GetMetadata(context.Background(), []string{flagObjectID}, flagKeys, func(m map[string]qcache.Metadata, err error) {
		result, opErr = m, err
		close(done)
	})
	<-done
	if opErr != nil {
		return fmt.Errorf("get_metadata: %w", opErr)
	}
	return printJSON(result)
}

func runSet(_ *cobra.Command, _ []string) error {
	fake := demoSession()
	_, meta := demoDeps(fake)

	values := map[string]qcache.Value{
		keyreg.KeyTitle: {Type: keyreg.TString, String: flagSetValue},
	}

	done := make(chan struct{})
	var failed []string
	var opErr error
	meta.SetMetadata(context.Background(), flagObjectID, values, func(f []string, err error) {
		failed, opErr = f, err
		close(done)
	})
	<-done
	if opErr != nil {
		return fmt.Errorf("set_metadata: %w", opErr)
	}
	return printJSON(map[string]any{"failed_keys": failed})
}

func runDestroy(_ *cobra.Command, _ []string) error {
	fake := demoSession()
	_, meta := demoDeps(fake)

	done := make(chan struct{})
	var opErr error
	meta.Destroy(context.Background(), flagObjectID, func(err error) {
		opErr = err
		close(done)
	})
	<-done
	if opErr != nil {
		return fmt.Errorf("destroy_object: %w", opErr)
	}
	fmt.Println("destroyed", flagObjectID)
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
