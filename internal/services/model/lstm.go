package model

import (
	"math"
	"math/rand"
)

// lstmCell is one recurrent layer. Weight matrices are [hidden][input+hidden]
// over the concatenation of the step input and the previous hidden state.
// Fields are exported for JSON persistence of trained weights.
type lstmCell struct {
	InputSize  int         `json:"input_size"`
	HiddenSize int         `json:"hidden_size"`
	Wf         [][]float64 `json:"wf"`
	Wi         [][]float64 `json:"wi"`
	Wc         [][]float64 `json:"wc"`
	Wo         [][]float64 `json:"wo"`
	Bf         []float64   `json:"bf"`
	Bi         []float64   `json:"bi"`
	Bc         []float64   `json:"bc"`
	Bo         []float64   `json:"bo"`
}

func newLSTMCell(inputSize, hiddenSize int, rng *rand.Rand) *lstmCell {
	c := &lstmCell{InputSize: inputSize, HiddenSize: hiddenSize}
	scale := 1.0 / math.Sqrt(float64(inputSize+hiddenSize))
	c.Wf = randMatrix(hiddenSize, inputSize+hiddenSize, scale, rng)
	c.Wi = randMatrix(hiddenSize, inputSize+hiddenSize, scale, rng)
	c.Wc = randMatrix(hiddenSize, inputSize+hiddenSize, scale, rng)
	c.Wo = randMatrix(hiddenSize, inputSize+hiddenSize, scale, rng)
	c.Bf = make([]float64, hiddenSize)
	c.Bi = make([]float64, hiddenSize)
	c.Bc = make([]float64, hiddenSize)
	c.Bo = make([]float64, hiddenSize)
	// Forget gate starts open so early training does not wipe cell state.
	for i := range c.Bf {
		c.Bf[i] = 1.0
	}
	return c
}

// cellStep caches everything one forward step needs for backprop.
type cellStep struct {
	z     []float64 // concat(x, hPrev)
	f     []float64
	i     []float64
	g     []float64
	o     []float64
	c     []float64
	tanhC []float64
	cPrev []float64
}

func (c *lstmCell) forward(x, hPrev, cPrev []float64) ([]float64, []float64, *cellStep) {
	z := make([]float64, c.InputSize+c.HiddenSize)
	copy(z, x)
	copy(z[c.InputSize:], hPrev)

	step := &cellStep{
		z:     z,
		f:     gateVec(c.Wf, z, c.Bf, sigmoid),
		i:     gateVec(c.Wi, z, c.Bi, sigmoid),
		g:     gateVec(c.Wc, z, c.Bc, math.Tanh),
		o:     gateVec(c.Wo, z, c.Bo, sigmoid),
		cPrev: cPrev,
	}

	cNew := make([]float64, c.HiddenSize)
	tanhC := make([]float64, c.HiddenSize)
	h := make([]float64, c.HiddenSize)
	for j := 0; j < c.HiddenSize; j++ {
		cNew[j] = step.f[j]*cPrev[j] + step.i[j]*step.g[j]
		tanhC[j] = math.Tanh(cNew[j])
		h[j] = step.o[j] * tanhC[j]
	}
	step.c = cNew
	step.tanhC = tanhC
	return h, cNew, step
}

// cellGrads accumulates weight gradients for one cell across a sequence.
type cellGrads struct {
	dWf, dWi, dWc, dWo [][]float64
	dBf, dBi, dBc, dBo []float64
}

func newCellGrads(c *lstmCell) *cellGrads {
	cols := c.InputSize + c.HiddenSize
	return &cellGrads{
		dWf: zeroMatrix(c.HiddenSize, cols),
		dWi: zeroMatrix(c.HiddenSize, cols),
		dWc: zeroMatrix(c.HiddenSize, cols),
		dWo: zeroMatrix(c.HiddenSize, cols),
		dBf: make([]float64, c.HiddenSize),
		dBi: make([]float64, c.HiddenSize),
		dBc: make([]float64, c.HiddenSize),
		dBo: make([]float64, c.HiddenSize),
	}
}

// backwardStep runs one timestep of backprop. dh is the loss gradient on this
// step's hidden output, dcNext the gradient flowing back through cell state.
// It returns the gradient on the step input and on the previous hidden and
// cell states.
func (c *lstmCell) backwardStep(step *cellStep, dh, dcNext []float64, g *cellGrads) (dx, dhPrev, dcPrev []float64) {
	n := c.HiddenSize
	dfRaw := make([]float64, n)
	diRaw := make([]float64, n)
	dgRaw := make([]float64, n)
	doRaw := make([]float64, n)
	dcPrev = make([]float64, n)

	for j := 0; j < n; j++ {
		do := dh[j] * step.tanhC[j]
		dc := dh[j]*step.o[j]*(1-step.tanhC[j]*step.tanhC[j]) + dcNext[j]
		df := dc * step.cPrev[j]
		di := dc * step.g[j]
		dg := dc * step.i[j]
		dcPrev[j] = dc * step.f[j]

		dfRaw[j] = df * step.f[j] * (1 - step.f[j])
		diRaw[j] = di * step.i[j] * (1 - step.i[j])
		dgRaw[j] = dg * (1 - step.g[j]*step.g[j])
		doRaw[j] = do * step.o[j] * (1 - step.o[j])
	}

	cols := c.InputSize + c.HiddenSize
	dz := make([]float64, cols)
	for j := 0; j < n; j++ {
		for k := 0; k < cols; k++ {
			g.dWf[j][k] += dfRaw[j] * step.z[k]
			g.dWi[j][k] += diRaw[j] * step.z[k]
			g.dWc[j][k] += dgRaw[j] * step.z[k]
			g.dWo[j][k] += doRaw[j] * step.z[k]
			dz[k] += c.Wf[j][k]*dfRaw[j] + c.Wi[j][k]*diRaw[j] + c.Wc[j][k]*dgRaw[j] + c.Wo[j][k]*doRaw[j]
		}
		g.dBf[j] += dfRaw[j]
		g.dBi[j] += diRaw[j]
		g.dBc[j] += dgRaw[j]
		g.dBo[j] += doRaw[j]
	}

	dx = dz[:c.InputSize]
	dhPrev = dz[c.InputSize:]
	return dx, dhPrev, dcPrev
}

// lstmNetwork stacks LSTM cells and ends in a single linear output unit
// reading the top cell's final hidden state.
type lstmNetwork struct {
	InputSize   int         `json:"input_size"`
	HiddenSizes []int       `json:"hidden_sizes"`
	Cells       []*lstmCell `json:"cells"`
	Wy          []float64   `json:"wy"`
	By          float64     `json:"by"`
}

func newLSTMNetwork(inputSize int, hiddenSizes []int, rng *rand.Rand) *lstmNetwork {
	n := &lstmNetwork{InputSize: inputSize, HiddenSizes: hiddenSizes}
	in := inputSize
	for _, h := range hiddenSizes {
		n.Cells = append(n.Cells, newLSTMCell(in, h, rng))
		in = h
	}
	scale := 1.0 / math.Sqrt(float64(in))
	n.Wy = make([]float64, in)
	for j := range n.Wy {
		n.Wy[j] = (rng.Float64()*2 - 1) * scale
	}
	return n
}

// seqCache holds the per-layer per-timestep forward state of one sequence.
type seqCache struct {
	steps   [][]*cellStep // [layer][t]
	topLast []float64     // final hidden of the top layer
}

func (n *lstmNetwork) forward(seq [][]float64) (float64, *seqCache) {
	cache := &seqCache{steps: make([][]*cellStep, len(n.Cells))}
	input := seq
	for li, cell := range n.Cells {
		h := make([]float64, cell.HiddenSize)
		c := make([]float64, cell.HiddenSize)
		out := make([][]float64, len(input))
		cache.steps[li] = make([]*cellStep, len(input))
		for t, x := range input {
			var step *cellStep
			h, c, step = cell.forward(x, h, c)
			out[t] = h
			cache.steps[li][t] = step
		}
		input = out
	}
	cache.topLast = input[len(input)-1]

	yhat := n.By
	for j, w := range n.Wy {
		yhat += w * cache.topLast[j]
	}
	return yhat, cache
}

// Predict runs inference without retaining caches.
func (n *lstmNetwork) Predict(seq [][]float64) float64 {
	yhat, _ := n.forward(seq)
	return yhat
}

type netGrads struct {
	cells []*cellGrads
	dWy   []float64
	dBy   float64
}

func newNetGrads(n *lstmNetwork) *netGrads {
	g := &netGrads{dWy: make([]float64, len(n.Wy))}
	for _, c := range n.Cells {
		g.cells = append(g.cells, newCellGrads(c))
	}
	return g
}

// backward accumulates gradients for one sequence into g. dyhat is the loss
// gradient on the scalar output.
func (n *lstmNetwork) backward(cache *seqCache, dyhat float64, g *netGrads) {
	steps := len(cache.steps[0])
	top := len(n.Cells) - 1

	// dh per layer per timestep, seeded from the output unit at the last step.
	dhByLayer := make([][][]float64, len(n.Cells))
	for li, cell := range n.Cells {
		dhByLayer[li] = make([][]float64, steps)
		for t := 0; t < steps; t++ {
			dhByLayer[li][t] = make([]float64, cell.HiddenSize)
		}
	}
	for j, w := range n.Wy {
		g.dWy[j] += dyhat * cache.topLast[j]
		dhByLayer[top][steps-1][j] += dyhat * w
	}
	g.dBy += dyhat

	for li := top; li >= 0; li-- {
		cell := n.Cells[li]
		dhNext := make([]float64, cell.HiddenSize)
		dcNext := make([]float64, cell.HiddenSize)
		for t := steps - 1; t >= 0; t-- {
			dh := make([]float64, cell.HiddenSize)
			for j := range dh {
				dh[j] = dhByLayer[li][t][j] + dhNext[j]
			}
			dx, dhPrev, dcPrev := cell.backwardStep(cache.steps[li][t], dh, dcNext, g.cells[li])
			dhNext, dcNext = dhPrev, dcPrev
			if li > 0 {
				below := dhByLayer[li-1][t]
				for j := range dx {
					below[j] += dx[j]
				}
			}
		}
	}
}

// clipAndApply scales gradients to the given global norm if they exceed it,
// then takes one SGD step. batchSize averages the accumulated gradients.
func (n *lstmNetwork) clipAndApply(g *netGrads, lr, clipNorm float64, batchSize int) {
	inv := 1.0 / float64(batchSize)
	var sq float64
	walkGrads(g, func(v *float64) {
		*v *= inv
		sq += *v * *v
	})
	norm := math.Sqrt(sq)
	scale := 1.0
	if clipNorm > 0 && norm > clipNorm {
		scale = clipNorm / norm
	}

	for li, cell := range n.Cells {
		cg := g.cells[li]
		applyMatrix(cell.Wf, cg.dWf, lr*scale)
		applyMatrix(cell.Wi, cg.dWi, lr*scale)
		applyMatrix(cell.Wc, cg.dWc, lr*scale)
		applyMatrix(cell.Wo, cg.dWo, lr*scale)
		applyVector(cell.Bf, cg.dBf, lr*scale)
		applyVector(cell.Bi, cg.dBi, lr*scale)
		applyVector(cell.Bc, cg.dBc, lr*scale)
		applyVector(cell.Bo, cg.dBo, lr*scale)
	}
	applyVector(n.Wy, g.dWy, lr*scale)
	n.By -= lr * scale * g.dBy
}

func walkGrads(g *netGrads, fn func(*float64)) {
	for _, cg := range g.cells {
		for _, m := range [][][]float64{cg.dWf, cg.dWi, cg.dWc, cg.dWo} {
			for _, row := range m {
				for k := range row {
					fn(&row[k])
				}
			}
		}
		for _, v := range [][]float64{cg.dBf, cg.dBi, cg.dBc, cg.dBo} {
			for k := range v {
				fn(&v[k])
			}
		}
	}
	for k := range g.dWy {
		fn(&g.dWy[k])
	}
	fn(&g.dBy)
}

// clone deep-copies the network for best-epoch weight snapshots.
func (n *lstmNetwork) clone() *lstmNetwork {
	out := &lstmNetwork{
		InputSize:   n.InputSize,
		HiddenSizes: append([]int(nil), n.HiddenSizes...),
		Wy:          append([]float64(nil), n.Wy...),
		By:          n.By,
	}
	for _, c := range n.Cells {
		out.Cells = append(out.Cells, &lstmCell{
			InputSize:  c.InputSize,
			HiddenSize: c.HiddenSize,
			Wf:         copyMatrix(c.Wf),
			Wi:         copyMatrix(c.Wi),
			Wc:         copyMatrix(c.Wc),
			Wo:         copyMatrix(c.Wo),
			Bf:         append([]float64(nil), c.Bf...),
			Bi:         append([]float64(nil), c.Bi...),
			Bc:         append([]float64(nil), c.Bc...),
			Bo:         append([]float64(nil), c.Bo...),
		})
	}
	return out
}

func gateVec(w [][]float64, z, b []float64, act func(float64) float64) []float64 {
	out := make([]float64, len(w))
	for j := range w {
		sum := b[j]
		row := w[j]
		for k, v := range z {
			sum += row[k] * v
		}
		out[j] = act(sum)
	}
	return out
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

func randMatrix(rows, cols int, scale float64, rng *rand.Rand) [][]float64 {
	m := make([][]float64, rows)
	for j := range m {
		m[j] = make([]float64, cols)
		for k := range m[j] {
			m[j][k] = (rng.Float64()*2 - 1) * scale
		}
	}
	return m
}

func zeroMatrix(rows, cols int) [][]float64 {
	m := make([][]float64, rows)
	for j := range m {
		m[j] = make([]float64, cols)
	}
	return m
}

func copyMatrix(m [][]float64) [][]float64 {
	out := make([][]float64, len(m))
	for j := range m {
		out[j] = append([]float64(nil), m[j]...)
	}
	return out
}

func applyMatrix(w, dw [][]float64, step float64) {
	for j := range w {
		for k := range w[j] {
			w[j][k] -= step * dw[j][k]
		}
	}
}

func applyVector(w, dw []float64, step float64) {
	for k := range w {
		w[k] -= step * dw[k]
	}
}
