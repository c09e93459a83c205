// Package track implements the constant-velocity Kalman/Hungarian
// multi-target tracker (spec §4.6): predict, gate & assign, update, spawn,
// prune. State per track is x = [range, doppler, vel_range, vel_doppler].
package track

// vec4 and mat4 are fixed-size arrays rather than a matrix library: the
// state dimension is fixed by the spec's constant-velocity model, so a
// general-purpose linear algebra dependency would buy nothing here.
type vec4 [4]float64
type mat4 [4][4]float64

// state holds one track's Kalman state and covariance.
type state struct {
	x vec4
	p mat4
}

// transitionMatrix returns F(dt) (spec §4.6 "Dynamics").
func transitionMatrix(dt float64) mat4 {
	return mat4{
		{1, 0, dt, 0},
		{0, 1, 0, dt},
		{0, 0, 1, 0},
		{0, 0, 0, 1},
	}
}

// processNoise returns Q(dt) scaled by q = process_var (spec §4.6).
func processNoise(dt, q float64) mat4 {
	dt2 := dt * dt
	dt3 := dt2 * dt
	return mat4{
		{q * dt3 / 3, 0, q * dt2 / 2, 0},
		{0, q * dt3 / 3, 0, q * dt2 / 2},
		{q * dt2 / 2, 0, q * dt, 0},
		{0, q * dt2 / 2, 0, q * dt},
	}
}

// predict advances s in place: x <- F*x, P <- F*P*F^T + Q.
func (s *state) predict(dt, processVar float64) {
	f := transitionMatrix(dt)
	q := processNoise(dt, processVar)

	s.x = matVec(f, s.x)
	s.p = matAdd(matMul(matMul(f, s.p), transpose(f)), q)
}

// update applies a standard Kalman measurement update with H = [[1,0,0,0],
// [0,1,0,0]] and R = measVar*I2 (spec §4.6 step 3). Returns false if the
// innovation covariance is singular, in which case s is left unmodified and
// the caller should coast the track instead.
func (s *state) update(z [2]float64, measVar float64) bool {
	// y = z - H*x
	y := [2]float64{z[0] - s.x[0], z[1] - s.x[1]}

	// S = H*P*H^T + R, the top-left 2x2 block of P plus measVar*I2.
	s00 := s.p[0][0] + measVar
	s01 := s.p[0][1]
	s10 := s.p[1][0]
	s11 := s.p[1][1] + measVar

	det := s00*s11 - s01*s10
	const singularEps = 1e-12
	if det < singularEps && det > -singularEps {
		return false
	}

	// S^-1 (2x2 inverse).
	invDet := 1 / det
	si00 := s11 * invDet
	si01 := -s01 * invDet
	si10 := -s10 * invDet
	si11 := s00 * invDet

	// K = P*H^T*S^-1, a 4x2 matrix; H^T picks out P's first two columns.
	var k [4][2]float64
	for i := 0; i < 4; i++ {
		p0, p1 := s.p[i][0], s.p[i][1]
		k[i][0] = p0*si00 + p1*si10
		k[i][1] = p0*si01 + p1*si11
	}

	for i := 0; i < 4; i++ {
		s.x[i] += k[i][0]*y[0] + k[i][1]*y[1]
	}

	// P <- (I - K*H)*P. K*H has nonzero columns 0,1 only, equal to K's
	// columns; so (I-K*H) acts by subtracting K[i][0]*P[0][j]+K[i][1]*P[1][j]
	// from row i of P.
	var newP mat4
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			newP[i][j] = s.p[i][j] - k[i][0]*s.p[0][j] - k[i][1]*s.p[1][j]
		}
	}
	s.p = newP

	return true
}

func matVec(m mat4, v vec4) vec4 {
	var out vec4
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			out[i] += m[i][j] * v[j]
		}
	}
	return out
}

func matMul(a, b mat4) mat4 {
	var out mat4
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			var sum float64
			for k := 0; k < 4; k++ {
				sum += a[i][k] * b[k][j]
			}
			out[i][j] = sum
		}
	}
	return out
}

func matAdd(a, b mat4) mat4 {
	var out mat4
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			out[i][j] = a[i][j] + b[i][j]
		}
	}
	return out
}

func transpose(m mat4) mat4 {
	var out mat4
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			out[j][i] = m[i][j]
		}
	}
	return out
}

func newState(rng, doppler float64) state {
	return state{
		x: vec4{rng, doppler, 0, 0},
		p: mat4{
			{50, 0, 0, 0},
			{0, 50, 0, 0},
			{0, 0, 25, 0},
			{0, 0, 0, 25},
		},
	}
}
