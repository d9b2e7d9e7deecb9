package cmd

import (
	"fmt"
	"log/slog"

	"github.com/RikVolger/CaTE/internal/annotate"
	"github.com/RikVolger/CaTE/internal/calib"
	"github.com/RikVolger/CaTE/internal/geom"
	"github.com/RikVolger/CaTE/internal/optimize"
	"github.com/spf13/cobra"
)

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Calibrate rig geometry against annotated marker positions",
	Long: `Runs the alternating calibration loop: marker locations are triangulated
from the current geometry estimate, then the geometry is refined against the
annotated pixel observations with a bounded robust least-squares solve. The
two steps repeat for a fixed iteration budget.

The annotations file must list the same markers for every projection, and the
projections must appear in the same order as the geometries in the geometry
file.`,
	RunE: runCalibrate,
}

func init() {
	calibrateCmd.Flags().String("geometry", "", "YAML file with the initial geometry estimates (required)")
	calibrateCmd.Flags().String("annotations", "", "JSON file with annotated marker pixel locations (required)")
	calibrateCmd.Flags().String("out", "", "output YAML file for the calibrated geometry (required)")
	calibrateCmd.Flags().String("markers-out", "", "optional output YAML file for the estimated marker locations")
	calibrateCmd.Flags().Int("iterations", 0, "override calibration.iterations from the configuration")
	_ = calibrateCmd.MarkFlagRequired("geometry")
	_ = calibrateCmd.MarkFlagRequired("annotations")
	_ = calibrateCmd.MarkFlagRequired("out")

	rootCmd.AddCommand(calibrateCmd)
}

func runCalibrate(cmd *cobra.Command, _ []string) error {
	geometryPath, _ := cmd.Flags().GetString("geometry")
	annotationsPath, _ := cmd.Flags().GetString("annotations")
	outPath, _ := cmd.Flags().GetString("out")
	markersOut, _ := cmd.Flags().GetString("markers-out")

	iters := globalConfig.Calibration.Iterations
	if override, _ := cmd.Flags().GetInt("iterations"); override > 0 {
		iters = override
	}

	geoms, err := geom.LoadFile(geometryPath)
	if err != nil {
		return err
	}

	store, err := annotate.Open(annotationsPath)
	if err != nil {
		return err
	}
	projections := store.Projections()
	if len(projections) != len(geoms) {
		return fmt.Errorf("%d annotated projections for %d geometries", len(projections), len(geoms))
	}
	data, err := store.Data(projections, geoms[0].Props)
	if err != nil {
		return err
	}

	slog.Info("starting calibration",
		"views", len(geoms),
		"markers", len(data[0]),
		"iterations", iters)

	opts := calib.Options{
		Solver:        optimize.NewLevenbergMarquardt(globalConfig.Solver),
		PositionBound: globalConfig.Calibration.PositionBound,
		AngleBound:    globalConfig.Calibration.AngleBound,
		Verbose:       globalConfig.Verbose,
	}
	markers, err := calib.EstimateMarkers(geoms, data, iters, opts)
	if err != nil {
		return err
	}

	if err := geom.SaveFile(outPath, geoms); err != nil {
		return err
	}
	slog.Info("calibrated geometry written", "path", outPath)

	if markersOut != "" {
		if err := writeMarkers(markersOut, markers); err != nil {
			return err
		}
		slog.Info("marker locations written", "path", markersOut)
	}
	return nil
}
