package cli

import (
	"github.com/spf13/cobra"

	"github.com/turtacn/dockpipe/internal/config"
	"github.com/turtacn/dockpipe/pkg/errors"
)

// addRunFlags registers the flags shared by commands that operate on a
// working directory.  Their values reach the commands through the loaded
// configuration.
func addRunFlags(cmd *cobra.Command, full bool) {
	f := cmd.Flags()
	f.StringP("receptor", "r", "", "receptor file (PDBQT), relative to the working directory")
	f.StringP("config", "c", "", "docking configuration file")
	f.StringP("workdir", "w", ".", "working directory")
	if !full {
		return
	}
	f.Float64P("pH", "p", config.DefaultPH, "protonation pH, 0 disables protonation")
	f.StringP("ligands", "l", "", "ligand library (SDF); empty skips conversion")
	f.Int("complexes", 0, "assemble complexes for the top N ligands (legacy form: -mc N)")
}

// NewRunCmd creates the run command: the whole pipeline on one directory.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Convert, dock, rank and organise a ligand library",
		Long: "Run the full pipeline in the working directory: convert the ligand library,\n" +
			"dock every ligand against the receptor, rank the scores, organise the\n" +
			"outputs and, with --complexes N, assemble complexes for the top N hits.",
		Example: "  dockpipe run -r receptor.pdbqt -c conf.txt -l library.sdf -p 7.4 --complexes 5",
		RunE:    runRun,
	}
	addRunFlags(cmd, true)
	return cmd
}

func runRun(cmd *cobra.Command, _ []string) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	rc := cliCtx.Config.Run
	if err := rc.Validate(); err != nil {
		return errors.Wrap(err, errors.ErrCodeValidation, "invalid run parameters")
	}

	infra := newInfrastructure(ctx, cliCtx.Config, cliCtx.Logger)
	defer infra.Close()

	p, err := infra.pipelineFor(rc)
	if err != nil {
		return err
	}

	release, err := infra.lockWorkDir(ctx, p.Workspace().Root())
	if err != nil {
		return err
	}
	defer release()

	summary, runErr := p.Run(ctx, rc)
	infra.pushMetrics(ctx)
	if summary != nil {
		if err := PrintResult(cmd, summaryView{summary}); err != nil {
			return err
		}
	}
	return runErr
}

// NewRankCmd creates the rank command: extraction and ranking only.
func NewRankCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Re-rank the docking outputs of an existing working directory",
		Long: "Extract scores from the docking outputs in the working directory (or its\n" +
			"outputs directory once organised) and rewrite the reports in the results\n" +
			"directory.",
		RunE: runRank,
	}
	addRunFlags(cmd, false)
	return cmd
}

func runRank(cmd *cobra.Command, _ []string) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	rc := cliCtx.Config.Run

	infra := newInfrastructure(cmd.Context(), cliCtx.Config, cliCtx.Logger)
	defer infra.Close()

	p, err := infra.pipelineFor(rc)
	if err != nil {
		return err
	}
	ext, err := p.Extract(rc)
	if err != nil {
		return err
	}
	if err := p.WriteReports(ext, p.Workspace().Layout().Results); err != nil {
		return err
	}
	return PrintResult(cmd, rankingView(ext.Ranking))
}

// NewOrganizeCmd creates the organize command.
func NewOrganizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "organize",
		Short: "Move docking files into the result directory layout",
		RunE:  runOrganize,
	}
	addRunFlags(cmd, false)
	return cmd
}

func runOrganize(cmd *cobra.Command, _ []string) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	rc := cliCtx.Config.Run

	infra := newInfrastructure(cmd.Context(), cliCtx.Config, cliCtx.Logger)
	defer infra.Close()

	p, err := infra.pipelineFor(rc)
	if err != nil {
		return err
	}
	return PrintResult(cmd, movesView(p.Organize(rc)))
}

// NewComplexesCmd creates the complexes command.
func NewComplexesCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "complexes",
		Short: "Assemble receptor-ligand complexes for the top ranked ligands",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runComplexes(cmd, n)
		},
	}
	addRunFlags(cmd, false)
	cmd.Flags().IntVarP(&n, "top", "n", 1, "number of top ranked ligands")
	cmd.Flags().String("merger", config.MergerPymol, "complex builder (pymol, builtin)")
	return cmd
}

func runComplexes(cmd *cobra.Command, n int) error {
	if n < 1 {
		return errors.InvalidParam("--top must be at least 1")
	}
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	rc := cliCtx.Config.Run
	if rc.Receptor == "" {
		return errors.InvalidParam("--receptor is required")
	}

	infra := newInfrastructure(cmd.Context(), cliCtx.Config, cliCtx.Logger)
	defer infra.Close()

	p, err := infra.pipelineFor(rc)
	if err != nil {
		return err
	}
	results, err := p.AssembleComplexes(cmd.Context(), rc, n)
	if err != nil {
		return err
	}
	return PrintResult(cmd, complexesView(results))
}
