package classify

import "math"

// The two sub-models are trained with deterministic full-batch gradient
// descent: no RNG, zero-initialized weights, samples visited in input order.
// Repeated fits on the same data therefore produce identical models, which
// the persistence round-trip tests rely on.

const (
	svmIters  = 500
	svmLambda = 0.01
	svmRate   = 0.5

	lrIters  = 500
	lrLambda = 1e-4
	lrRate   = 1.0

	plattIters = 300
	plattRate  = 1.0
)

// linearSVM is a one-vs-rest margin classifier trained on hinge loss.
// Weights[c] and Bias[c] give the decision score for class c.
type linearSVM struct {
	Weights [][]float64 `json:"weights"`
	Bias    []float64   `json:"bias"`
}

// fitSVM trains one hinge-loss separator per class. sampleWeight compensates
// for label imbalance (balanced weighting: n / (k * count(class))).
func fitSVM(x [][]float64, y []int, numClasses int, sampleWeight []float64) *linearSVM {
	n := len(x)
	dim := 0
	if n > 0 {
		dim = len(x[0])
	}
	m := &linearSVM{
		Weights: make([][]float64, numClasses),
		Bias:    make([]float64, numClasses),
	}
	for c := 0; c < numClasses; c++ {
		w := make([]float64, dim)
		b := 0.0
		for iter := 0; iter < svmIters; iter++ {
			gradW := make([]float64, dim)
			gradB := 0.0
			for i := 0; i < n; i++ {
				t := -1.0
				if y[i] == c {
					t = 1.0
				}
				score := b
				for j, v := range x[i] {
					score += w[j] * v
				}
				if t*score < 1 {
					coef := sampleWeight[i] * t / float64(n)
					for j, v := range x[i] {
						gradW[j] -= coef * v
					}
					gradB -= coef
				}
			}
			for j := range w {
				w[j] -= svmRate * (gradW[j] + svmLambda*w[j])
			}
			b -= svmRate * gradB
		}
		m.Weights[c] = w
		m.Bias[c] = b
	}
	return m
}

// scores returns the raw decision score of each class for one vector.
func (m *linearSVM) scores(x []float64) []float64 {
	out := make([]float64, len(m.Weights))
	for c, w := range m.Weights {
		s := m.Bias[c]
		for j, v := range x {
			s += w[j] * v
		}
		out[c] = s
	}
	return out
}

// predict returns the argmax class by raw score (ties to the lowest index).
func (m *linearSVM) predict(x []float64) int {
	scores := m.scores(x)
	best := 0
	for c, s := range scores {
		if s > scores[best] {
			best = c
		}
	}
	return best
}

// plattScaler maps a raw decision score to a probability via sigmoid(A*s+B).
type plattScaler struct {
	A float64 `json:"a"`
	B float64 `json:"b"`
}

func (p plattScaler) prob(score float64) float64 {
	return sigmoid(p.A*score + p.B)
}

// fitPlatt fits the sigmoid on (score, isPositive) pairs by gradient descent
// on log loss, with Platt's prior-smoothed targets so degenerate pools
// (all positive or all negative) still yield a finite fit.
func fitPlatt(scores []float64, positive []bool) plattScaler {
	nPos, nNeg := 0, 0
	for _, p := range positive {
		if p {
			nPos++
		} else {
			nNeg++
		}
	}
	tPos := (float64(nPos) + 1) / (float64(nPos) + 2)
	tNeg := 1.0 / (float64(nNeg) + 2)

	// A starts positive: higher score means higher probability.
	a, b := 1.0, 0.0
	n := float64(len(scores))
	if n == 0 {
		return plattScaler{A: 1, B: 0}
	}
	for iter := 0; iter < plattIters; iter++ {
		gradA, gradB := 0.0, 0.0
		for i, s := range scores {
			target := tNeg
			if positive[i] {
				target = tPos
			}
			p := sigmoid(a*s + b)
			diff := p - target
			gradA += diff * s
			gradB += diff
		}
		a -= plattRate * gradA / n
		b -= plattRate * gradB / n
	}
	return plattScaler{A: a, B: b}
}

// logreg is a multinomial logistic regression trained on softmax log loss.
type logreg struct {
	Weights [][]float64 `json:"weights"`
	Bias    []float64   `json:"bias"`
}

func fitLogreg(x [][]float64, y []int, numClasses int, sampleWeight []float64) *logreg {
	n := len(x)
	dim := 0
	if n > 0 {
		dim = len(x[0])
	}
	m := &logreg{
		Weights: make([][]float64, numClasses),
		Bias:    make([]float64, numClasses),
	}
	for c := range m.Weights {
		m.Weights[c] = make([]float64, dim)
	}
	for iter := 0; iter < lrIters; iter++ {
		gradW := make([][]float64, numClasses)
		for c := range gradW {
			gradW[c] = make([]float64, dim)
		}
		gradB := make([]float64, numClasses)
		for i := 0; i < n; i++ {
			probs := m.proba(x[i])
			for c := 0; c < numClasses; c++ {
				diff := probs[c]
				if y[i] == c {
					diff -= 1
				}
				coef := sampleWeight[i] * diff / float64(n)
				for j, v := range x[i] {
					gradW[c][j] += coef * v
				}
				gradB[c] += coef
			}
		}
		for c := 0; c < numClasses; c++ {
			for j := range m.Weights[c] {
				m.Weights[c][j] -= lrRate * (gradW[c][j] + lrLambda*m.Weights[c][j])
			}
			m.Bias[c] -= lrRate * gradB[c]
		}
	}
	return m
}

// proba returns the softmax distribution over classes for one vector.
func (m *logreg) proba(x []float64) []float64 {
	k := len(m.Weights)
	scores := make([]float64, k)
	maxScore := math.Inf(-1)
	for c := 0; c < k; c++ {
		s := m.Bias[c]
		for j, v := range x {
			s += m.Weights[c][j] * v
		}
		scores[c] = s
		if s > maxScore {
			maxScore = s
		}
	}
	var sum float64
	for c := 0; c < k; c++ {
		scores[c] = math.Exp(scores[c] - maxScore)
		sum += scores[c]
	}
	for c := 0; c < k; c++ {
		scores[c] /= sum
	}
	return scores
}

func (m *logreg) predict(x []float64) int {
	probs := m.proba(x)
	best := 0
	for c, p := range probs {
		if p > probs[best] {
			best = c
		}
	}
	return best
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

// balancedWeights gives each sample the weight n / (k * count(class)), so
// every class contributes equally to the loss regardless of its support.
func balancedWeights(y []int, numClasses int) []float64 {
	counts := make([]int, numClasses)
	for _, c := range y {
		counts[c]++
	}
	n := float64(len(y))
	k := float64(numClasses)
	out := make([]float64, len(y))
	for i, c := range y {
		if counts[c] > 0 {
			out[i] = n / (k * float64(counts[c]))
		}
	}
	return out
}
