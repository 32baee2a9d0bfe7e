package parse

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Inventory maps normalized item keys to counts.
type Inventory map[string]int

// Clone returns an independent copy.
func (inv Inventory) Clone() Inventory {
	out := make(Inventory, len(inv))
	for k, v := range inv {
		out[k] = v
	}
	return out
}

// Items returns the item keys in sorted order, for stable display.
func (inv Inventory) Items() []string {
	keys := make([]string, 0, len(inv))
	for k := range inv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// CraftingState is the structured extraction from a crafting-style
// text observation.
type CraftingState struct {
	// Inventory holds the parsed item counts. Nil when the observation
	// carried no Inventory section at all; empty when the section said
	// the agent carries nothing.
	Inventory Inventory
	// Goal is the goal text with a leading "craft" prefix stripped.
	Goal string
	// Commands lists available crafting commands verbatim.
	Commands []string
}

var (
	inventoryLine  = regexp.MustCompile(`(?i)Inventory:\s*(.+?)(?:\n|$)`)
	inventoryItem  = regexp.MustCompile(`\[([^\]]+)\]\s*\((\d+)\)`)
	goalLine       = regexp.MustCompile(`(?i)Goal:\s*(?:craft\s+)?([^.\n]+)\.?`)
	commandSection = regexp.MustCompile(`(?i)Crafting commands:\s*([\s\S]*?)(?:Goal:|$)`)
	gotDelta       = regexp.MustCompile(`(?i)Got\s+(\d+)\s+(.+?)(?:\n|$)`)
	craftedDelta   = regexp.MustCompile(`(?i)Crafted\s+(\d+)\s+(.+?)(?:\n|$)`)
)

// emptyInventoryPhrases mark an Inventory section that reports the
// agent carrying nothing.
var emptyInventoryPhrases = []string{
	"you are not carrying anything",
	"empty",
	"nothing",
}

// Crafting extracts inventory, goal and crafting commands from a
// crafting-style observation.
func Crafting(observation string) CraftingState {
	return CraftingState{
		Inventory: ParseInventory(observation),
		Goal:      ParseGoal(observation),
		Commands:  ParseCraftingCommands(observation),
	}
}

// ParseInventory parses the Inventory section into item counts.
// Returns nil when no Inventory section is present, an empty map when
// the section reports an empty inventory. Unmatched remainder text is
// ignored.
func ParseInventory(observation string) Inventory {
	m := inventoryLine.FindStringSubmatch(observation)
	if m == nil {
		return nil
	}

	section := strings.TrimSpace(m[1])
	lowered := strings.ToLower(section)
	if section == "" {
		return Inventory{}
	}
	for _, phrase := range emptyInventoryPhrases {
		if strings.Contains(lowered, phrase) {
			return Inventory{}
		}
	}

	inv := Inventory{}
	for _, item := range inventoryItem.FindAllStringSubmatch(section, -1) {
		count, err := strconv.Atoi(item[2])
		if err != nil || count <= 0 {
			continue
		}
		// A later duplicate entry replaces, not merges: the section is
		// the backend's full statement of what is carried.
		inv[NormalizeName(item[1])] = count
	}
	return inv
}

// ParseGoal returns the goal text, stopping at a literal period or
// line end, with an optional leading "craft" stripped. Empty when no
// Goal line exists.
func ParseGoal(observation string) string {
	m := goalLine.FindStringSubmatch(observation)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// ParseCraftingCommands lists every line starting with "craft" between
// the "Crafting commands:" header and the Goal header or end of text.
func ParseCraftingCommands(observation string) []string {
	m := commandSection.FindStringSubmatch(observation)
	if m == nil {
		return nil
	}
	var commands []string
	for _, line := range strings.Split(m[1], "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "craft") {
			commands = append(commands, line)
		}
	}
	return commands
}

// ApplyDeltas folds "Got N item" and "Crafted N item" lines into inv,
// creating entries as needed. This keeps a live cache warm between
// full Inventory reparses; a full reparse always replaces the cache
// wholesale. The input map is mutated and returned.
func ApplyDeltas(inv Inventory, observation string) Inventory {
	if inv == nil {
		inv = Inventory{}
	}
	for _, re := range []*regexp.Regexp{gotDelta, craftedDelta} {
		for _, m := range re.FindAllStringSubmatch(observation, -1) {
			count, err := strconv.Atoi(m[1])
			if err != nil || count <= 0 {
				continue
			}
			inv[NormalizeName(m[2])] += count
		}
	}
	return inv
}
