package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"

	"github.com/benmeehan/proximity-agent/internal/store"
	"github.com/benmeehan/proximity-agent/internal/utils"
	"github.com/benmeehan/proximity-agent/pkg/file"
	"github.com/benmeehan/proximity-agent/pkg/s3"
	"github.com/rs/zerolog"
)

var unknownCommandPattern = regexp.MustCompile(`unknown command "([^"]+)"`)

// Dependencies wires runtime services.
type Dependencies struct {
	FileClient    file.FileOperations
	LoadConfig    func(path, envFile string) (*utils.Config, error)
	OpenStore     func(ctx context.Context, config *utils.Config, logger zerolog.Logger) (store.MarkerStore, error)
	ObjectStorage func(bucket string) s3.ObjectStorageClient
	Version       string
}

// DefaultDependencies returns the production wiring.
func DefaultDependencies(version string) Dependencies {
	fileClient := file.NewFileService()
	return Dependencies{
		FileClient: fileClient,
		LoadConfig: func(path, envFile string) (*utils.Config, error) {
			return utils.LoadConfig(path, envFile, fileClient)
		},
		OpenStore: func(ctx context.Context, config *utils.Config, logger zerolog.Logger) (store.MarkerStore, error) {
			return store.Open(ctx, config, fileClient, logger)
		},
		ObjectStorage: func(bucket string) s3.ObjectStorageClient {
			return s3.NewObjectStorage(bucket)
		},
		Version: version,
	}
}

var errVersionShown = fmt.Errorf("version shown")

// Execute runs the CLI with injected dependencies and returns the exit code.
func Execute(ctx context.Context, args []string, deps Dependencies, stdout io.Writer, stderr io.Writer) int {
	cmd := NewRootCommand(deps)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(ctx)
	if err == nil || errors.Is(err, errVersionShown) {
		return 0
	}

	if matches := unknownCommandPattern.FindStringSubmatch(err.Error()); len(matches) > 1 {
		_, _ = fmt.Fprintf(stderr, "No such command '%s'\n", matches[1])
		return 2
	}

	_, _ = fmt.Fprintln(stderr, err.Error())
	return 1
}
