package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"nerapi/internal/models"
)

func modelCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Inspect and install models",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List known models and their install state",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				reg, err := models.LoadEmbeddedRegistry()
				if err != nil {
					return err
				}
				modelList(cmd.OutOrStdout(), reg, a.cfg.ModelsDir, a.cfg.ModelName)
				return nil
			},
		},
		&cobra.Command{
			Use:   "info <name>",
			Short: "Show details for one model",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				reg, err := models.LoadEmbeddedRegistry()
				if err != nil {
					return err
				}
				return modelInfo(cmd.OutOrStdout(), reg, a.cfg.ModelsDir, args[0])
			},
		},
		modelInstallCmd(a),
	)
	return cmd
}

func modelInstallCmd(a *app) *cobra.Command {
	var archive, url, checksum string
	cmd := &cobra.Command{
		Use:   "install <name>",
		Short: "Install a model archive into the models directory",
		Long: "Download a model archive with --url, install a local tar.gz with --archive, " +
			"or download the archive listed in the registry. " +
			"Hub models without an archive are fetched by the engine on first load.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			name := args[0]
			root := a.cfg.ModelsDir
			if archive != "" && url != "" {
				return fmt.Errorf("--archive and --url are mutually exclusive")
			}
			if archive != "" {
				return installLocalArchive(out, archive, root, name, checksum)
			}

			reg, err := models.LoadEmbeddedRegistry()
			if err != nil {
				return err
			}
			m, err := installSpec(reg, name, url, checksum)
			if err != nil {
				return err
			}
			return modelDownload(cmd.Context(), out, m, root)
		},
	}
	cmd.Flags().StringVar(&archive, "archive", "", "local tar.gz holding a saved model")
	cmd.Flags().StringVar(&url, "url", "", "download the model tar.gz from this URL")
	cmd.Flags().StringVar(&checksum, "checksum", "", "expected sha256:<hex> of the archive (required with --url)")
	return cmd
}

func installLocalArchive(out io.Writer, archive, root, name, checksum string) error {
	if checksum != "" {
		if err := models.VerifyChecksum(archive, checksum); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return err
	}
	if err := models.InstallArchive(archive, root, name, checksum); err != nil {
		return err
	}
	fmt.Fprintf(out, "%s Model %s installed in %s\n", okStyle.Render("✓"), name, models.ModelInstallPath(root, name))
	return nil
}

// installSpec picks what to download for name. An explicit URL overrides the
// registry and may name a model the registry does not know.
func installSpec(reg models.Registry, name, url, checksum string) (models.ModelSpec, error) {
	m, known := reg.Find(name)
	if url == "" {
		if !known {
			return models.ModelSpec{}, fmt.Errorf("model %q not found; pass --url or --archive to install it", name)
		}
		return m, nil
	}
	if checksum == "" {
		return models.ModelSpec{}, fmt.Errorf("--checksum is required with --url")
	}
	if !known {
		m = models.ModelSpec{Name: name, DisplayName: name}
	}
	m.URL = url
	m.Checksum = checksum
	return m, nil
}

func modelList(w io.Writer, reg models.Registry, root, current string) {
	fmt.Fprintln(w, titleStyle.Render("Available Models"))
	fmt.Fprintln(w, strings.Repeat("-", 80))
	fmt.Fprintf(w, "%-16s %-28s %-6s %-14s %s\n", "NAME", "IDENTIFIER", "LANG", "STATUS", "")
	fmt.Fprintln(w, strings.Repeat("-", 80))
	installed := 0
	for _, m := range reg.Models {
		status := "hub"
		if models.IsInstalled(root, m) {
			status = "installed"
			installed++
		}
		marker := ""
		if m.Name == current || m.Identifier == current {
			marker = okStyle.Render("(configured)")
		}
		fmt.Fprintf(w, "%-16s %-28s %-6s %-14s %s\n", m.Name, m.Identifier, m.Language, status, marker)
	}
	fmt.Fprintln(w, strings.Repeat("-", 80))
	fmt.Fprintf(w, "Installed: %d/%d models in %s\n", installed, len(reg.Models), root)
	fmt.Fprintln(w, mutedStyle.Render("\nTip: any hub identifier or local model directory also works as the model name"))
}

func modelInfo(w io.Writer, reg models.Registry, root, name string) error {
	m, ok := reg.Find(name)
	if !ok {
		return fmt.Errorf("model %q not found", name)
	}
	status := "Fetched on first load"
	if models.IsInstalled(root, m) {
		status = "Installed"
	}
	fmt.Fprintf(w, "%s %s\n", titleStyle.Render("Model:"), m.Name)
	fmt.Fprintln(w, strings.Repeat("-", 40))
	fmt.Fprintf(w, "Status:         %s\n", status)
	fmt.Fprintf(w, "Identifier:     %s\n", m.Identifier)
	fmt.Fprintf(w, "Version:        %s\n", m.Version)
	fmt.Fprintf(w, "Language:       %s\n", m.Language)
	fmt.Fprintf(w, "Location:       %s\n", models.ModelInstallPath(root, m.Name))
	fmt.Fprintf(w, "Description:    %s\n", m.Description)
	fmt.Fprintf(w, "Architecture:   %s\n", m.Architecture)
	fmt.Fprintf(w, "License:        %s\n", m.License)
	if m.Archived() {
		fmt.Fprintf(w, "Size:           %s\n", humanBytes(m.SizeBytes))
		fmt.Fprintf(w, "URL:            %s\n", m.URL)
		fmt.Fprintf(w, "Checksum:       %s\n", m.Checksum)
	}
	return nil
}

func modelDownload(ctx context.Context, w io.Writer, m models.ModelSpec, root string) error {
	if !m.Archived() {
		fmt.Fprintf(w, "Model %s is fetched from %s by the engine on first load; nothing to install.\n", m.Name, m.Identifier)
		return nil
	}
	if m.Version != "" {
		fmt.Fprintf(w, "\nDownloading %s v%s\n", m.Name, m.Version)
	} else {
		fmt.Fprintf(w, "\nDownloading %s\n", m.Name)
	}
	fmt.Fprintf(w, "Source: %s\n\n", m.URL)
	var lastUpdate time.Time
	err := models.NewDownloader().DownloadAndInstall(ctx, m, root, func(p models.Progress) {
		if time.Since(lastUpdate) < 120*time.Millisecond && p.Total > 0 {
			return
		}
		lastUpdate = time.Now()
		pct := float64(0)
		if p.Total > 0 {
			pct = float64(p.Downloaded) * 100 / float64(p.Total)
		}
		fmt.Fprintf(w, "\rDownloading... %6.2f%% | %s / %s | %.2f MB/s | ETA %s", pct, humanBytes(p.Downloaded), humanBytes(p.Total), p.SpeedMBps, p.ETA.Truncate(time.Second))
	})
	fmt.Fprintln(w)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "\n%s Model %s installed successfully\n", okStyle.Render("✓"), m.Name)
	return nil
}

func humanBytes(n int64) string {
	if n <= 0 {
		return "0 B"
	}
	const mb = 1024 * 1024
	if n >= mb {
		return fmt.Sprintf("%d MB", n/mb)
	}
	return fmt.Sprintf("%d KB", n/1024)
}
