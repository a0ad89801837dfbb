package main

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/crowdcount/internal/perspective"
)

var (
	homographySquare float64
	homographyScale  float64
)

var homographyCmd = &cobra.Command{
	Use:   "homography TL_X,TL_Y TR_X,TR_Y BR_X,BR_Y BL_X,BL_Y",
	Short: "Compute the ground-plane homography for a reference square",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		var src [4]perspective.Point
		for i, arg := range args {
			p, err := parsePoint(arg)
			if err != nil {
				return err
			}
			src[i] = p
		}

		h, err := perspective.ComputeHomography(src, homographySquare, homographyScale)
		if err != nil {
			return err
		}
		return writeResult(cmd.OutOrStdout(), map[string][][]float64{"homography": h.Rounded(4).Rows()}, nil)
	},
}

func parsePoint(s string) (perspective.Point, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return perspective.Point{}, eris.Errorf("point %q must be x,y", s)
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return perspective.Point{}, eris.Wrapf(err, "point %q", s)
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return perspective.Point{}, eris.Wrapf(err, "point %q", s)
	}
	return perspective.Point{X: x, Y: y}, nil
}

func init() {
	homographyCmd.Flags().Float64Var(&homographySquare, "square", perspective.DefaultSquareSize, "reference square side in metres")
	homographyCmd.Flags().Float64Var(&homographyScale, "px-per-meter", perspective.DefaultPxPerMeter, "output pixels per metre")
	rootCmd.AddCommand(homographyCmd)
}
