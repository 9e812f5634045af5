// Package emotion models the persona's mood on a bounded numeric scale.
//
// A Classifier reads the trainee's tone and the Tracker folds that tone and
// any phase transition shift into the next EmotionalState.
package emotion
