package mlp

import (
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// Accuracy returns the fraction of predictions matching labels.
func Accuracy(preds, labels []int) (float64, error) {
	if len(preds) != len(labels) {
		return 0, fmt.Errorf("predictions and labels differ in length: %d != %d", len(preds), len(labels))
	}
	if len(preds) == 0 {
		return 0, nil
	}
	hits := make([]float64, len(preds))
	for i := range preds {
		if preds[i] == labels[i] {
			hits[i] = 1.0
		}
	}
	return stat.Mean(hits, nil), nil
}

// ConfusionMatrix counts predictions per (true class, predicted class) cell.
// Rows are true classes, columns predicted classes.
func ConfusionMatrix(preds, labels []int, numClasses int) ([][]int, error) {
	if len(preds) != len(labels) {
		return nil, fmt.Errorf("predictions and labels differ in length: %d != %d", len(preds), len(labels))
	}
	cm := make([][]int, numClasses)
	for i := range cm {
		cm[i] = make([]int, numClasses)
	}
	for i := range preds {
		if labels[i] < 0 || labels[i] >= numClasses || preds[i] < 0 || preds[i] >= numClasses {
			return nil, fmt.Errorf("class index outside [0, %d) at example %d", numClasses, i)
		}
		cm[labels[i]][preds[i]]++
	}
	return cm, nil
}

// MeanHistory averages loss and accuracy over the last n recorded steps.
// n <= 0 averages the whole history.
func MeanHistory(history []StepMetrics, n int) (loss, acc float64) {
	if len(history) == 0 {
		return 0, 0
	}
	if n <= 0 || n > len(history) {
		n = len(history)
	}
	tail := history[len(history)-n:]
	losses := make([]float64, len(tail))
	accs := make([]float64, len(tail))
	for i, h := range tail {
		losses[i] = h.Loss
		accs[i] = h.Accuracy
	}
	return stat.Mean(losses, nil), stat.Mean(accs, nil)
}
