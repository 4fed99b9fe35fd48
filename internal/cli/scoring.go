package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/models"
	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/scoring"
	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/services"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// profileFile is the on-disk form of a scoring profile:
//
//	name: launch-week
//	tiers: [100, 60, 30]
//	default_points: 5
//
// An empty name targets the current profile.
type profileFile struct {
	Name           string `yaml:"name"`
	scoring.Config `yaml:",inline"`
}

func parseProfile(data []byte) (*profileFile, error) {
	var p profileFile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("invalid profile file: %w", err)
	}
	p.Name = strings.TrimSpace(p.Name)
	if err := scoring.Validate(p.Config); err != nil {
		return nil, err
	}
	return &p, nil
}

var (
	applyFile    string
	applyPromote bool
	actor        string
)

var scoringCmd = &cobra.Command{
	Use:   "scoring",
	Short: "Inspect and change points schedules",
}

var scoringShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current schedule and every saved profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, db, err := connect()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		svc := services.NewScoringService(db)
		current, err := svc.Current(ctx)
		if err != nil {
			return err
		}
		profiles, err := svc.Profiles(ctx)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		printProfile(out, current)
		for i := range profiles {
			if profiles[i].Name != models.CurrentScoringProfile {
				printProfile(out, &profiles[i])
			}
		}
		return nil
	},
}

var scoringApplyCmd = &cobra.Command{
	Use:   "apply -f FILE",
	Short: "Save a profile from a YAML file",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(applyFile)
		if err != nil {
			return err
		}
		p, err := parseProfile(data)
		if err != nil {
			return err
		}

		_, db, err := connect()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()
		svc := services.NewScoringService(db)

		var saved *models.ScoringProfile
		if p.Name == "" || p.Name == models.CurrentScoringProfile {
			saved, err = svc.SaveCurrent(ctx, p.Config, actor)
		} else {
			saved, err = svc.SaveProfile(ctx, p.Name, p.Config, actor)
			if err == nil && applyPromote {
				saved, err = svc.Promote(ctx, p.Name, actor)
			}
		}
		if err != nil {
			return err
		}
		printProfile(cmd.OutOrStdout(), saved)
		return nil
	},
}

var scoringPromoteCmd = &cobra.Command{
	Use:   "promote NAME",
	Short: "Make a saved profile the current schedule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, db, err := connect()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		saved, err := services.NewScoringService(db).Promote(ctx, args[0], actor)
		if err != nil {
			return err
		}
		printProfile(cmd.OutOrStdout(), saved)
		return nil
	},
}

func init() {
	scoringCmd.PersistentFlags().StringVar(&actor, "as", "rumorctl", "identity recorded as updated_by")

	scoringApplyCmd.Flags().StringVarP(&applyFile, "file", "f", "", "profile YAML file")
	scoringApplyCmd.Flags().BoolVar(&applyPromote, "promote", false, "also make the profile current")
	_ = scoringApplyCmd.MarkFlagRequired("file")

	scoringCmd.AddCommand(scoringShowCmd, scoringApplyCmd, scoringPromoteCmd)
}

func printProfile(w io.Writer, p *models.ScoringProfile) {
	version := fmt.Sprintf("v%d", p.Version)
	if p.Version == 0 {
		version = "built-in"
	}
	fmt.Fprintf(w, "%-20s %-9s tiers=%v default=%d\n", p.Name, version, []int(p.Tiers), p.DefaultPoints)
}
