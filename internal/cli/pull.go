package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/RevCBH/jobrunner/internal/image"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

// PullOptions holds flags for the pull command
type PullOptions struct {
	Force bool // pull even when the image is present
}

// NewPullCmd creates the pull command
func NewPullCmd(app *App) *cobra.Command {
	var opts PullOptions

	cmd := &cobra.Command{
		Use:   "pull [package-manager...]",
		Short: "Pre-fetch the proxy and updater images",
		Long: `Pull fetches the proxy image and the updater images of the given package
managers, or of every configured package manager when none are given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.PullImages(cmd.Context(), cmd, args, opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.Force, "force", "f", false, "Pull even if the image exists locally")
	return cmd
}

// PullImages pulls the proxy image and the updater images of managers.
func (a *App) PullImages(ctx context.Context, cmd *cobra.Command, managers []string, opts PullOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, _, log, err := a.setup(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	if len(managers) == 0 {
		managers = lo.Keys(cfg.Images.Updaters)
		sort.Strings(managers)
	}
	refs := []string{cfg.Images.Proxy}
	for _, pm := range managers {
		ref := cfg.UpdaterImage(pm)
		if ref == "" {
			return fmt.Errorf("no updater image configured for package manager %q", pm)
		}
		refs = append(refs, ref)
	}
	refs = lo.Uniq(refs)

	runtime, err := a.newRuntime(cfg)
	if err != nil {
		return fmt.Errorf("container runtime: %w", err)
	}
	svc := image.NewService(runtime, image.Options{
		Logger:         log,
		AllowUntrusted: cfg.Images.AllowUntrusted,
	})

	if opts.Force {
		for _, ref := range refs {
			if err := svc.Pull(ctx, ref, true); err != nil {
				return err
			}
		}
	} else if err := svc.PullAll(ctx, refs...); err != nil {
		return err
	}

	for _, ref := range refs {
		fmt.Fprintln(cmd.OutOrStdout(), ref)
	}
	return nil
}
