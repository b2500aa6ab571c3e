package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/benmeehan/proximity-agent/internal/models"
	"github.com/benmeehan/proximity-agent/internal/store"
	"github.com/benmeehan/proximity-agent/internal/utils"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const (
	formatTable   = "table"
	formatJSON    = "json"
	formatGeoJSON = "geojson"
)

// outputFormat is a flag value restricted to the supported marker formats.
type outputFormat string

var _ pflag.Value = (*outputFormat)(nil)

func (f *outputFormat) String() string { return string(*f) }
func (f *outputFormat) Type() string   { return "format" }

func (f *outputFormat) Set(v string) error {
	switch v {
	case formatTable, formatJSON, formatGeoJSON:
		*f = outputFormat(v)
		return nil
	default:
		return fmt.Errorf("unknown format %q", v)
	}
}

func newMarkersCommand(deps Dependencies, flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "markers",
		Short: "Manage saved markers.",
	}
	cmd.AddCommand(newMarkersListCommand(deps, flags))
	cmd.AddCommand(newMarkersAddCommand(deps, flags))
	cmd.AddCommand(newMarkersDeleteCommand(deps, flags))
	cmd.AddCommand(newMarkersImportCommand(deps, flags))
	cmd.AddCommand(newMarkersAttachCommand(deps, flags))
	return cmd
}

// withStore loads the configuration, opens the marker store and closes it
// after fn returns.
func withStore(ctx context.Context, deps Dependencies, flags *globalFlags, errOut io.Writer,
	fn func(config *utils.Config, s store.MarkerStore) error) error {
	config, err := loadConfig(deps, flags)
	if err != nil {
		return err
	}
	logger, err := newLogger(config, errOut)
	if err != nil {
		return err
	}
	s, err := deps.OpenStore(ctx, config, logger.Level(zerolog.WarnLevel))
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(config, s)
}

func newMarkersListCommand(deps Dependencies, flags *globalFlags) *cobra.Command {
	format := outputFormat(formatTable)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved markers.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd.Context(), deps, flags, cmd.ErrOrStderr(), func(_ *utils.Config, s store.MarkerStore) error {
				markers, err := s.ListMarkers(cmd.Context())
				if err != nil {
					return err
				}
				return writeMarkers(cmd.OutOrStdout(), markers, string(format))
			})
		},
	}
	cmd.Flags().VarP(&format, "format", "f", "Output format: table, json, or geojson.")
	return cmd
}

func newMarkersAddCommand(deps Dependencies, flags *globalFlags) *cobra.Command {
	var in models.NewMarker
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Save a new marker.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd.Context(), deps, flags, cmd.ErrOrStderr(), func(_ *utils.Config, s store.MarkerStore) error {
				marker, err := s.AddMarker(cmd.Context(), in)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), marker.ID)
				return err
			})
		},
	}
	cmd.Flags().Float64Var(&in.Latitude, "lat", 0, "Latitude in degrees.")
	cmd.Flags().Float64Var(&in.Longitude, "lon", 0, "Longitude in degrees.")
	cmd.Flags().StringVar(&in.Title, "title", "", "Title shown in the notification.")
	cmd.Flags().StringVar(&in.Description, "description", "", "Notification body text.")
	_ = cmd.MarkFlagRequired("lat")
	_ = cmd.MarkFlagRequired("lon")
	return cmd
}

func newMarkersDeleteCommand(deps Dependencies, flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <marker-id>",
		Short: "Delete a marker and its images.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), deps, flags, cmd.ErrOrStderr(), func(_ *utils.Config, s store.MarkerStore) error {
				return s.DeleteMarker(cmd.Context(), args[0])
			})
		},
	}
}

func newMarkersImportCommand(deps Dependencies, flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.geojson>",
		Short: "Import Point features from a GeoJSON FeatureCollection.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := deps.FileClient.ReadFileRaw(args[0])
			if err != nil {
				return err
			}
			return withStore(cmd.Context(), deps, flags, cmd.ErrOrStderr(), func(_ *utils.Config, s store.MarkerStore) error {
				created, err := store.ImportGeoJSON(cmd.Context(), s, data)
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "imported %d markers\n", len(created))
				return err
			})
		},
	}
}

func newMarkersAttachCommand(deps Dependencies, flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "attach <marker-id> <image>",
		Short: "Upload a photo to object storage and attach it to a marker.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			markerID, path := args[0], args[1]

			return withStore(ctx, deps, flags, cmd.ErrOrStderr(), func(config *utils.Config, s store.MarkerStore) error {
				if !config.Images.Enabled {
					return errors.New("images are disabled in the configuration")
				}
				if _, err := s.GetMarker(ctx, markerID); err != nil {
					return err
				}

				f, err := os.Open(path)
				if err != nil {
					return err
				}
				defer f.Close()
				info, err := f.Stat()
				if err != nil {
					return err
				}

				storage := deps.ObjectStorage(config.Images.Bucket)
				if err := storage.Connect(ctx, config.Images.Endpoint, config.Images.AccessKey, config.Images.SecretKey, config.Images.UseSSL); err != nil {
					return err
				}
				obj, err := storage.UploadImage(ctx, markerID, filepath.Base(path), f, info.Size())
				if err != nil {
					return err
				}

				image, err := s.AddImage(ctx, models.Image{MarkerID: markerID, URI: obj.URI(), Name: filepath.Base(path)})
				if err != nil {
					if rmErr := storage.RemoveObject(ctx, obj.Name); rmErr != nil {
						return errors.Join(err, rmErr)
					}
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), image.ID)
				return err
			})
		},
	}
}

func writeMarkers(out io.Writer, markers []models.Marker, format string) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(markers)
	case formatGeoJSON:
		data, err := store.ExportGeoJSON(markers)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	case formatTable:
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "ID\tCOORDINATE\tTITLE\tIMAGES")
		for _, m := range markers {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", m.ID, m.Coordinate, m.Title, len(m.Images))
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}
