package topo

import "fmt"

// Palette is the cyclic group colour table. Index k colours the k-th group.
var Palette = []string{
	"#d4a574", // tan
	"#7aa874", // sage green
	"#7488a8", // steel blue
	"#a87488", // mauve
	"#8b74a8", // purple
	"#a89674", // olive
	"#74a8a8", // teal
	"#a87474", // dusty rose
	"#88a874", // lime green
	"#7498a8", // sky blue
	"#a88874", // terracotta
	"#9474a8", // violet
	"#74a888", // mint
	"#a87498", // pink
	"#a8a874", // yellow-green
	"#7474a8", // periwinkle
}

// PaletteColor returns the colour of the k-th group.
func PaletteColor(k int) string {
	return Palette[k%len(Palette)]
}

// GroupID returns the identifier of the k-th group: G1, G2, ...
func GroupID(k int) string {
	return fmt.Sprintf("G%d", k+1)
}

// LinkName returns the display name of the k-th group: Link_A ... Link_Z, Link_AA, ...
func LinkName(k int) string {
	letters := ""
	for k >= 0 {
		letters = string(rune('A'+k%26)) + letters
		k = k/26 - 1
	}
	return "Link_" + letters
}
