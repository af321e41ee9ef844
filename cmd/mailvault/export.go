package main

import (
	"archive/tar"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/spf13/cobra"

	"mailvault/internal/blobstore"
	"mailvault/internal/config"
	"mailvault/internal/models"
	"mailvault/internal/store"
)

// exportManifest is the index written at the head of a snapshot archive.
type exportManifest struct {
	Snapshot models.Snapshot       `json:"snapshot"`
	Items    []models.SnapshotItem `json:"items"`
}

func newExportCmd(cfg *config.Config) *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "export <snapshot-id>",
		Short: "Export one completed snapshot as a zstd-compressed tar archive",
		Long: `Writes a self-contained archive holding the snapshot manifest and every
blob the snapshot references. Only completed snapshots can be exported.`,
		Args: requireExactlyArgs(1, "snapshot id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseSnapshotID(args[0])
			if err != nil {
				return err
			}
			if outputPath == "" {
				outputPath = fmt.Sprintf("snapshot-%d.tar.zst", id)
			}

			return withStore(cfg, func(st *store.Store) error {
				cas, err := openBlobStore(cfg)
				if err != nil {
					return err
				}
				if err := exportSnapshot(cmd, st, cas, id, outputPath); err != nil {
					return err
				}
				return writePlain("exported snapshot #%d to %s\n", id, outputPath)
			})
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "archive path (default: snapshot-<id>.tar.zst)")
	return cmd
}

func exportSnapshot(cmd *cobra.Command, st *store.Store, cas *blobstore.LocalCAS, id int64, outputPath string) error {
	ctx := cmd.Context()

	snapshot, err := st.GetSnapshot(ctx, id)
	if err != nil {
		return err
	}
	if snapshot.Status != models.SnapshotComplete {
		return fmt.Errorf("snapshot %d is %s; only completed snapshots can be exported", id, snapshot.Status)
	}

	items, err := st.ListSnapshotItems(ctx, id)
	if err != nil {
		return err
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	defer f.Close()

	zw, err := zstd.NewWriter(f)
	if err != nil {
		return err
	}
	tw := tar.NewWriter(zw)

	manifest, err := json.MarshalIndent(exportManifest{Snapshot: *snapshot, Items: items}, "", "  ")
	if err != nil {
		return err
	}
	if err := writeTarFile(tw, "manifest.json", manifest); err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if _, ok := seen[item.Digest]; ok {
			continue
		}
		seen[item.Digest] = struct{}{}

		blob, err := st.GetBlob(ctx, item.Digest)
		if err != nil {
			return fmt.Errorf("blob %s referenced by snapshot %d: %w", item.Digest, id, err)
		}
		if err := writeTarBlob(ctx, tw, cas, blob); err != nil {
			return err
		}
	}

	if err := tw.Close(); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	return f.Close()
}

func writeTarFile(tw *tar.Writer, name string, data []byte) error {
	header := &tar.Header{
		Name:    name,
		Mode:    0o644,
		Size:    int64(len(data)),
		ModTime: time.Now().UTC(),
	}
	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	_, err := tw.Write(data)
	return err
}

func writeTarBlob(ctx context.Context, tw *tar.Writer, cas *blobstore.LocalCAS, blob *models.Blob) error {
	rc, err := cas.Open(ctx, blob.Digest)
	if err != nil {
		return fmt.Errorf("open blob %s: %w", blob.Digest, err)
	}
	defer rc.Close()

	header := &tar.Header{
		Name:    "blobs/" + blob.Digest,
		Mode:    0o644,
		Size:    blob.SizeBytes,
		ModTime: blob.CreatedAt,
	}
	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	_, err = io.Copy(tw, rc)
	return err
}
