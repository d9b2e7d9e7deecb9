package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/RikVolger/CaTE/internal/annotate"
	"github.com/RikVolger/CaTE/internal/geom"
	"github.com/RikVolger/CaTE/internal/param"
	"github.com/RikVolger/CaTE/internal/phantom"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Generate a synthetic calibration dataset",
	Long: `Generates a circular multi-view rig with a helix marker phantom, projects
the markers through every view with optional pixel noise, and writes the
ground-truth geometry, a perturbed geometry estimate, and the annotations to
the output directory. The resulting files feed directly into 'cate calibrate'.`,
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().Int("views", 0, "number of views (overrides simulation.views)")
	simulateCmd.Flags().Int("markers", 0, "number of markers (overrides simulation.markers)")
	simulateCmd.Flags().Float64("noise", -1, "observation noise sigma in detector units (overrides simulation.noise)")
	simulateCmd.Flags().Int64("seed", 0, "random seed (overrides simulation.seed)")
	simulateCmd.Flags().String("out", ".", "output directory")

	rootCmd.AddCommand(simulateCmd)
}

func runSimulate(cmd *cobra.Command, _ []string) error {
	sim := globalConfig.Simulation
	if v, _ := cmd.Flags().GetInt("views"); v > 0 {
		sim.Views = v
	}
	if v, _ := cmd.Flags().GetInt("markers"); v > 0 {
		sim.Markers = v
	}
	if v, _ := cmd.Flags().GetFloat64("noise"); v >= 0 {
		sim.Noise = v
	}
	if v, _ := cmd.Flags().GetInt64("seed"); v != 0 {
		sim.Seed = v
	}
	outDir, _ := cmd.Flags().GetString("out")

	if err := os.MkdirAll(outDir, 0o750); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	det := geom.Detector{Rows: 1024, Cols: 1024, PixelWidth: 0.2, PixelHeight: 0.2}
	truth, err := phantom.CircularGeometries(sim.Views, sim.SourceDist, sim.DetectorDist, det)
	if err != nil {
		return err
	}
	markers := phantom.Helix(sim.Markers, 30, 60)

	data, err := phantom.Simulate(truth, markers, sim.Noise, sim.Seed)
	if err != nil {
		return err
	}

	if err := geom.SaveFile(filepath.Join(outDir, "geometry_truth.yaml"), truth); err != nil {
		return err
	}

	// The estimate handed to calibration is a corrupted copy of the truth,
	// with the first view pinned as gauge reference.
	estimate := make([]*geom.Geometry, len(truth))
	for i, g := range truth {
		estimate[i] = g.Clone()
	}
	for _, p := range estimate[0].Params() {
		p.(param.Parameter).SetOptimizable(false)
	}
	if err := phantom.PerturbGeometries(estimate, 2, 0.01, sim.Seed+1); err != nil {
		return err
	}
	if err := geom.SaveFile(filepath.Join(outDir, "geometry_estimate.yaml"), estimate); err != nil {
		return err
	}

	store, err := annotate.Open(filepath.Join(outDir, "annotations.json"))
	if err != nil {
		return err
	}
	for i, row := range data {
		for j, obs := range row {
			px, py := detectorToPixel(obs.U, obs.V, det)
			store.Set(fmt.Sprintf("%03d", i), fmt.Sprintf("marker-%02d", j), px, py)
		}
	}
	if err := store.Save(); err != nil {
		return err
	}

	truthMarkers := make(param.Collection, 0, len(markers))
	for _, m := range markers {
		v, err := param.NewVector(m, false)
		if err != nil {
			return err
		}
		truthMarkers = append(truthMarkers, v)
	}
	if err := writeMarkers(filepath.Join(outDir, "markers_truth.yaml"), truthMarkers); err != nil {
		return err
	}

	slog.Info("synthetic dataset written",
		"dir", outDir,
		"views", sim.Views,
		"markers", sim.Markers,
		"noise", sim.Noise)
	return nil
}

// detectorToPixel is the inverse of annotate.PixelToDetector, used to store
// simulated observations in the image-frame convention of the annotations
// file.
func detectorToPixel(u, v float64, det geom.Detector) (px, py float64) {
	px = float64(det.Rows)/2 - u/det.PixelWidth
	py = float64(det.Cols)/2 - v/det.PixelHeight
	return px, py
}

// writeMarkers saves marker locations as a YAML list.
func writeMarkers(path string, markers param.Collection) error {
	out := struct {
		Markers [][]float64 `yaml:"markers"`
	}{}
	for _, entry := range markers {
		p, ok := entry.(param.Parameter)
		if !ok {
			continue
		}
		out.Markers = append(out.Markers, p.Value())
	}

	raw, err := yaml.Marshal(&out)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("writing markers: %w", err)
	}
	return nil
}
