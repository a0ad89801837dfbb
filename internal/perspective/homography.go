// Package perspective computes the planar homography that maps a reference
// square seen by a camera onto ground coordinates.
package perspective

import (
	"math"

	"github.com/rotisserie/eris"
)

// Defaults for ComputeHomography: a 2 m square drawn at 10 px per metre.
const (
	DefaultSquareSize = 2.0
	DefaultPxPerMeter = 10.0
)

// ErrDegenerate is returned when the points do not span a quadrilateral.
var ErrDegenerate = eris.New("perspective: degenerate point set")

// Point is an (x, y) pair in image or ground coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Matrix is a row-major 3×3 homography.
type Matrix [3][3]float64

// Target returns the corners of a square of side squareSize metres centred
// on the origin, scaled by pxPerMeter, in TL, TR, BR, BL order.
func Target(squareSize, pxPerMeter float64) [4]Point {
	h := squareSize / 2 * pxPerMeter
	return [4]Point{{-h, -h}, {h, -h}, {h, h}, {-h, h}}
}

// ComputeHomography returns H with h33 = 1 mapping src (TL, TR, BR, BL) onto
// the centred square.
func ComputeHomography(src [4]Point, squareSize, pxPerMeter float64) (Matrix, error) {
	if squareSize <= 0 || pxPerMeter <= 0 {
		return Matrix{}, eris.New("perspective: square size and scale must be positive")
	}
	return Solve(src, Target(squareSize, pxPerMeter))
}

// Solve returns the homography mapping each src point onto the matching dst
// point, normalised so h33 = 1.
func Solve(src, dst [4]Point) (Matrix, error) {
	// Each correspondence gives two rows of A·h = b with h = (h11..h32).
	var a [8][9]float64
	for i := 0; i < 4; i++ {
		x, y := src[i].X, src[i].Y
		u, v := dst[i].X, dst[i].Y
		a[2*i] = [9]float64{x, y, 1, 0, 0, 0, -u * x, -u * y, u}
		a[2*i+1] = [9]float64{0, 0, 0, x, y, 1, -v * x, -v * y, v}
	}

	h, err := gaussJordan(a)
	if err != nil {
		return Matrix{}, err
	}
	return Matrix{
		{h[0], h[1], h[2]},
		{h[3], h[4], h[5]},
		{h[6], h[7], 1},
	}, nil
}

// gaussJordan solves the augmented 8×9 system with partial pivoting.
func gaussJordan(a [8][9]float64) ([8]float64, error) {
	const eps = 1e-10
	const n = 8

	for col := 0; col < n; col++ {
		pivot := col
		for r := col + 1; r < n; r++ {
			if math.Abs(a[r][col]) > math.Abs(a[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(a[pivot][col]) < eps {
			return [8]float64{}, ErrDegenerate
		}
		a[col], a[pivot] = a[pivot], a[col]

		p := a[col][col]
		for c := col; c <= n; c++ {
			a[col][c] /= p
		}
		for r := 0; r < n; r++ {
			if r == col || a[r][col] == 0 {
				continue
			}
			f := a[r][col]
			for c := col; c <= n; c++ {
				a[r][c] -= f * a[col][c]
			}
		}
	}

	var h [8]float64
	for i := range h {
		h[i] = a[i][n]
	}
	return h, nil
}

// Apply projects p through m.
func Apply(m Matrix, p Point) (Point, error) {
	w := m[2][0]*p.X + m[2][1]*p.Y + m[2][2]
	if math.Abs(w) < 1e-12 {
		return Point{}, eris.Errorf("perspective: point (%g, %g) maps to infinity", p.X, p.Y)
	}
	return Point{
		X: (m[0][0]*p.X + m[0][1]*p.Y + m[0][2]) / w,
		Y: (m[1][0]*p.X + m[1][1]*p.Y + m[1][2]) / w,
	}, nil
}

// Rounded returns m with every entry rounded to the given number of decimals.
func (m Matrix) Rounded(decimals int) Matrix {
	scale := math.Pow(10, float64(decimals))
	var out Matrix
	for i := range m {
		for j := range m[i] {
			out[i][j] = math.Round(m[i][j]*scale) / scale
		}
	}
	return out
}

// Rows returns m as nested slices for JSON encoding.
func (m Matrix) Rows() [][]float64 {
	out := make([][]float64, 3)
	for i := range m {
		out[i] = []float64{m[i][0], m[i][1], m[i][2]}
	}
	return out
}
