package track

import "math"

// infCost is the gating sentinel: far above any real distance cost, yet
// finite and small enough that the solver never compares it against its own
// internal infinity and its dual potentials keep full precision.
const infCost = 1e9

// solveAssignment finds the minimum-cost perfect matching of rows to
// columns of a (possibly non-square) cost matrix using the Hungarian
// algorithm, then discards any pairing whose original cost was the
// infinity sentinel (spec §4.6 step 2). assignment[i] is the matched
// column for row i, or -1 if row i is unmatched.
//
// This is a straightforward O(n^3) primal-dual (Kuhn-Munkres) Hungarian
// solver over a square padded matrix; it is the spec's own subject matter
// (gating and assignment), so it is hand-rolled rather than imported.
func solveAssignment(cost [][]float64) []int {
	rows := len(cost)
	if rows == 0 {
		return nil
	}
	cols := len(cost[0])
	n := rows
	if cols > n {
		n = cols
	}

	// Pad to an n x n square matrix with infCost for out-of-range cells.
	a := make([][]float64, n)
	for i := range a {
		a[i] = make([]float64, n)
		for j := range a[i] {
			if i < rows && j < cols {
				a[i][j] = cost[i][j]
			} else {
				a[i][j] = infCost
			}
		}
	}

	colMatch, _ := hungarian(a)

	assignment := make([]int, rows)
	for i := range assignment {
		assignment[i] = -1
	}
	for j := 0; j < n; j++ {
		i := colMatch[j]
		if i < 0 || i >= rows || j >= cols {
			continue
		}
		if a[i][j] >= infCost {
			continue
		}
		assignment[i] = j
	}
	return assignment
}

// hungarian implements the Jonker-Volgenant shortest-augmenting-path
// variant of the Kuhn-Munkres algorithm for an n x n cost matrix. Returns
// colMatch (colMatch[j] = matched row, or -1) and the rowMatch mirror.
func hungarian(a [][]float64) (colMatch, rowMatch []int) {
	n := len(a)
	const inf = math.MaxFloat64 / 2

	u := make([]float64, n+1)
	v := make([]float64, n+1)
	p := make([]int, n+1) // p[j] = row matched to column j (1-indexed, 0 = sentinel)
	way := make([]int, n+1)

	for i := 1; i <= n; i++ {
		p[0] = i
		j0 := 0
		minV := make([]float64, n+1)
		used := make([]bool, n+1)
		for j := range minV {
			minV[j] = inf
		}

		for {
			used[j0] = true
			i0 := p[j0]
			delta := inf
			j1 := -1
			for j := 1; j <= n; j++ {
				if used[j] {
					continue
				}
				cur := a[i0-1][j-1] - u[i0] - v[j]
				if cur < minV[j] {
					minV[j] = cur
					way[j] = j0
				}
				if minV[j] < delta {
					delta = minV[j]
					j1 = j
				}
			}
			for j := 0; j <= n; j++ {
				if used[j] {
					u[p[j]] += delta
					v[j] -= delta
				} else {
					minV[j] -= delta
				}
			}
			j0 = j1
			if p[j0] == 0 {
				break
			}
		}

		for j0 != 0 {
			j1 := way[j0]
			p[j0] = p[j1]
			j0 = j1
		}
	}

	colMatch = make([]int, n)
	rowMatch = make([]int, n)
	for i := range rowMatch {
		rowMatch[i] = -1
	}
	for j := 1; j <= n; j++ {
		row := p[j] - 1
		colMatch[j-1] = row
		if row >= 0 {
			rowMatch[row] = j - 1
		}
	}
	return colMatch, rowMatch
}
