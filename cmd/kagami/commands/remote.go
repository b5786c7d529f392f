package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hyperjump/kagami/internal/remote"
)

// NewPushCmd creates the push command
func NewPushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "push",
		Short: "Upload the vector store to the configured object storage bucket",
		Long: `Copy the persisted matrix and manifest to the remote bucket so other hosts
can pull the same store. Credentials come from remote.access_key and
remote.secret_key or the KAGAMI_REMOTE_ACCESS_KEY and KAGAMI_REMOTE_SECRET_KEY
environment variables (a .env file is honoured).`,
		Args: cobra.NoArgs,
		RunE: runPush,
	}
}

// NewPullCmd creates the pull command
func NewPullCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pull",
		Short: "Download the vector store from the configured object storage bucket",
		Long: `Fetch the matrix and manifest from the remote bucket, validate them, and
replace the local store. The local store is left untouched when the remote
copy is missing or fails validation.`,
		Args: cobra.NoArgs,
		RunE: runPull,
	}
}

func newMirror(cmd *cobra.Command) (*remote.Mirror, string, error) {
	cfg, logger, err := setup()
	if err != nil {
		return nil, "", err
	}
	if !cfg.Remote.Enabled() {
		return nil, "", fmt.Errorf("remote storage is not configured (set remote.endpoint and remote.bucket)")
	}
	mirror, err := remote.New(cmd.Context(), cfg.Remote, remote.WithLogger(logger))
	if err != nil {
		return nil, "", err
	}
	return mirror, cfg.Storage.StorePath, nil
}

func runPush(cmd *cobra.Command, args []string) error {
	mirror, storePath, err := newMirror(cmd)
	if err != nil {
		return err
	}
	if err := mirror.Push(cmd.Context(), storePath); err != nil {
		return fmt.Errorf("push failed: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Pushed %s\n", storePath)
	return nil
}

func runPull(cmd *cobra.Command, args []string) error {
	mirror, storePath, err := newMirror(cmd)
	if err != nil {
		return err
	}
	store, err := mirror.Pull(cmd.Context(), storePath)
	if err != nil {
		return fmt.Errorf("pull failed: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Pulled %d vectors (dim %d) into %s\n", store.Len(), store.Dim(), storePath)
	return nil
}
