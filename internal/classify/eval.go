package classify

// Cross-validated evaluation used by Fit to report per-sub-model quality.
// Fold assignment is stratified round-robin in input order, so evaluation is
// deterministic across runs.

// stratifiedFolds assigns each sample to a fold, cycling per class.
func stratifiedFolds(y []int, numClasses, numFolds int) []int {
	next := make([]int, numClasses)
	folds := make([]int, len(y))
	for i, c := range y {
		folds[i] = next[c]
		next[c] = (next[c] + 1) % numFolds
	}
	return folds
}

// foldCount mirrors the evaluation fold rule: min(5, smallest class count),
// floored at 2.
func foldCount(y []int, numClasses int) int {
	counts := make([]int, numClasses)
	for _, c := range y {
		counts[c]++
	}
	minCount := len(y)
	for _, c := range counts {
		if c > 0 && c < minCount {
			minCount = c
		}
	}
	n := minCount
	if n > 5 {
		n = 5
	}
	if n < 2 {
		n = 2
	}
	return n
}

// weightedF1 computes the support-weighted mean of per-class F1 scores.
func weightedF1(yTrue, yPred []int, numClasses int) float64 {
	if len(yTrue) == 0 {
		return 0
	}
	tp := make([]int, numClasses)
	fp := make([]int, numClasses)
	fn := make([]int, numClasses)
	support := make([]int, numClasses)
	for i := range yTrue {
		support[yTrue[i]]++
		if yPred[i] == yTrue[i] {
			tp[yTrue[i]]++
		} else {
			fp[yPred[i]]++
			fn[yTrue[i]]++
		}
	}
	var sum float64
	for c := 0; c < numClasses; c++ {
		if support[c] == 0 {
			continue
		}
		var f1 float64
		denom := 2*tp[c] + fp[c] + fn[c]
		if denom > 0 {
			f1 = 2 * float64(tp[c]) / float64(denom)
		}
		sum += f1 * float64(support[c])
	}
	return sum / float64(len(yTrue))
}

// crossValF1 runs k-fold cross-validation of a training function and returns
// the mean weighted F1 across folds. train must return a predictor over
// class indices.
func crossValF1(
	x [][]float64, y []int, numClasses, numFolds int,
	train func(tx [][]float64, ty []int) func([]float64) int,
) float64 {
	folds := stratifiedFolds(y, numClasses, numFolds)
	var total float64
	for f := 0; f < numFolds; f++ {
		var trainX, testX [][]float64
		var trainY, testY []int
		for i := range x {
			if folds[i] == f {
				testX = append(testX, x[i])
				testY = append(testY, y[i])
			} else {
				trainX = append(trainX, x[i])
				trainY = append(trainY, y[i])
			}
		}
		if len(trainX) == 0 || len(testX) == 0 {
			continue
		}
		predict := train(trainX, trainY)
		pred := make([]int, len(testX))
		for i, v := range testX {
			pred[i] = predict(v)
		}
		total += weightedF1(testY, pred, numClasses)
	}
	return total / float64(numFolds)
}
