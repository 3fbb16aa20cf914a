// Package voices maps character traits to prebuilt voice IDs. It is a pure
// lookup layer: speech synthesis and live sessions ask it which voice to use,
// it never touches audio itself.
package voices

import "strings"

// Default is the voice used when no trait matches.
const Default = "Kore"

// Selection describes the traits a voice is picked from. An explicit Override
// wins over everything else.
type Selection struct {
	// Gender is "female", "male" or empty.
	Gender string

	// Age is "child", "young", "adult" or "elderly". Empty means adult.
	Age string

	// Override, when non-empty, names the voice ID directly.
	Override string
}

// byTraits routes gender/age pairs to voice IDs. Ages missing for a gender
// fall back to the gender's adult voice.
var byTraits = map[string]map[string]string{
	"female": {
		"child":   "Aoede",
		"young":   "Aoede",
		"adult":   "Kore",
		"elderly": "Kore",
	},
	"male": {
		"child":   "Puck",
		"young":   "Puck",
		"adult":   "Fenrir",
		"elderly": "Charon",
	},
}

// Select returns the voice ID for the given selection. Matching is
// case-insensitive; unknown traits resolve to Default.
func Select(sel Selection) string {
	if sel.Override != "" {
		return sel.Override
	}

	gender := strings.ToLower(strings.TrimSpace(sel.Gender))
	ages, ok := byTraits[gender]
	if !ok {
		return Default
	}

	age := strings.ToLower(strings.TrimSpace(sel.Age))
	if age == "" {
		age = "adult"
	}
	if v, ok := ages[age]; ok {
		return v
	}
	return ages["adult"]
}

// Known reports whether id is one of the prebuilt voice IDs this table can
// produce.
func Known(id string) bool {
	for _, ages := range byTraits {
		for _, v := range ages {
			if v == id {
				return true
			}
		}
	}
	return id == Default
}
