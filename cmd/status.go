// This file implements the status command for inspecting installed artifacts.
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/hyper-light/bookmind/core/recommender"
)

// =============================================================================
// Status Command Flags
// =============================================================================

var statusJSON bool

// =============================================================================
// Status Command
// =============================================================================

// statusCmd shows the installed artifact generation.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show installed artifact status",
	Long: `Show the currently installed artifact generation: which ranking
sources are available, and what the last rebuild produced.

Examples:
  bookmind status
  bookmind status --json`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output as JSON")
}

// statusOutput is the JSON output for status.
type statusOutput struct {
	ArtifactDir   string    `json:"artifact_dir"`
	Content       bool      `json:"content"`
	Collaborative bool      `json:"collaborative"`
	RunID         string    `json:"run_id,omitempty"`
	BuiltAt       time.Time `json:"built_at,omitempty"`
	Books         int       `json:"books"`
	Users         int       `json:"users"`
	Ratings       int       `json:"ratings"`
	Dimension     int       `json:"dimension"`
	Model         string    `json:"model,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Load quietly; degraded sources are the status being reported.
	set := recommender.LoadArtifactSet(cfg.Artifacts.Dir, slog.New(slog.DiscardHandler))

	status := &statusOutput{
		ArtifactDir:   cfg.Artifacts.Dir,
		Content:       set.HasContent(),
		Collaborative: set.HasCollaborative(),
	}
	if set.Manifest != nil {
		status.RunID = set.Manifest.RunID
		status.BuiltAt = set.Manifest.BuiltAt
		status.Books = set.Manifest.Books
		status.Users = set.Manifest.Users
		status.Ratings = set.Manifest.Ratings
		status.Dimension = set.Manifest.Dimension
		status.Model = set.Manifest.Model
	}

	if statusJSON {
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(status)
	}
	return outputRichStatus(cmd.OutOrStdout(), status)
}

func outputRichStatus(w io.Writer, status *statusOutput) error {
	fmt.Fprintf(w, "%s%sArtifact Status%s\n", colorBold, colorCyan, colorReset)
	fmt.Fprintf(w, "%sDir:%s           %s\n", colorGray, colorReset, status.ArtifactDir)

	printSource(w, "Content", status.Content)
	printSource(w, "Collaborative", status.Collaborative)

	if status.RunID == "" {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "%sNo manifest found. Run 'bookmind rebuild' to build artifacts.%s\n", colorYellow, colorReset)
		return nil
	}

	fmt.Fprintf(w, "%sRun:%s           %s\n", colorGray, colorReset, status.RunID)
	fmt.Fprintf(w, "%sBuilt:%s         %s\n", colorGray, colorReset, status.BuiltAt.Format(time.RFC3339))
	fmt.Fprintf(w, "%sBooks:%s         %d\n", colorGray, colorReset, status.Books)
	fmt.Fprintf(w, "%sUsers:%s         %d\n", colorGray, colorReset, status.Users)
	fmt.Fprintf(w, "%sRatings:%s       %d\n", colorGray, colorReset, status.Ratings)
	fmt.Fprintf(w, "%sDimension:%s     %d\n", colorGray, colorReset, status.Dimension)
	if status.Model != "" {
		fmt.Fprintf(w, "%sModel:%s         %s\n", colorGray, colorReset, status.Model)
	}
	return nil
}

func printSource(w io.Writer, name string, available bool) {
	label := fmt.Sprintf("%s:", name)
	if available {
		fmt.Fprintf(w, "%s%-14s%s %sAvailable%s\n", colorGray, label, colorReset, colorGreen, colorReset)
		return
	}
	fmt.Fprintf(w, "%s%-14s%s %sUnavailable%s\n", colorGray, label, colorReset, colorRed, colorReset)
}
