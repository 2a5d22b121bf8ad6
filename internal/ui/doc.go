// Package ui implements the interactive download review using bubbletea's Elm architecture.
//
// [ReviewModel] lists the deduplicated download set of a batch with every row selected. Space
// toggles the row under the cursor, a toggles every row, enter confirms and q aborts. The footer
// compares the size of the selection with the account's buffer, which is fetched once when the
// review starts.
//
// [RunReview] drives the model with a [tea.Program] and returns the confirmed subset.
package ui
