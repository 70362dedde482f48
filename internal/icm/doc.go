// Package icm implements an Interpolated Context Model: a variable-order
// probabilistic model over fixed-length windows of a small alphabet.
//
// A model predicts the last symbol of a window of ModelLen symbols from the
// ModelLen-1 symbols before it. For every periodicity frame it keeps a
// complete tree of depth ModelDepth whose nodes each branch on one window
// position, the one carrying the most mutual information with the predicted
// symbol among the positions not yet used on the path from the root.
// Every node holds a distribution over the alphabet that interpolates its
// own counts with its parent's distribution, so a deep, sparsely observed
// context falls back smoothly towards shallower, better estimated ones.
//
// Lifecycle:
//
//	Trainer (Empty) --Accumulate--> Trainer (Training) --Finalize--> *Model
//
// A Trainer accumulates weighted examples; Finalize counts the deeper
// levels, interpolates every node, converts the tables to log-probabilities
// and returns a read-only Model. Models are safe for concurrent scoring.
//
// Errors (sentinel, match with errors.Is):
//
//   - ErrConfiguration: invalid len/depth/periodicity/alphabet relationship.
//   - ErrInvalidSequence: example too short, bad weight or unknown symbol.
//   - ErrOutOfRange: frame, level, node id or window length out of bounds.
//   - ErrInvalidState: operation attempted in the wrong lifecycle phase.
//
// Example usage:
//
//	tr, err := icm.NewTrainer(icm.Config{ModelLen: 12, ModelDepth: 7, Periodicity: 3})
//	if err != nil { ... }
//	if err := tr.Accumulate(icm.Example{Seq: gene, P: 1}); err != nil { ... }
//	model, err := tr.Finalize()
//	score, err := model.ScoreString(read, 0)
package icm
