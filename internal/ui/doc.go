// Package ui renders operator-facing terminal output with lipgloss styles.
//
// [Palette] is the stylesheet shared by every command. [Progress] turns fetch progress updates into
// single status lines so long downloads can be followed without an interactive terminal.
//
// [Model] is the bubbletea picker behind `tdx tui`: it searches the catalog, lists the matches and
// fetches the chosen track into the cache while streaming its progress.
package ui
