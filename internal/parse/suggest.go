package parse

import "strings"

// Suggestions proposes safe next commands for a crafting observation,
// derived from inventory contents, the available command list and the
// goal. Output is deterministic for identical inputs and capped at
// eight entries.
func Suggestions(inv Inventory, commands []string, goal string) []string {
	var out []string
	seen := map[string]bool{}
	add := func(s string) {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}

	add("inventory")
	add("look around")

	if len(inv) == 0 {
		add("get 1 wood")
		add("get 1 stone")
	} else {
		hasWood := hasItemLike(inv, "wood") || hasItemLike(inv, "log")
		hasStick := hasItemLike(inv, "stick")
		hasPlanks := hasItemLike(inv, "plank")
		if hasWood && !hasStick {
			add("craft 4 planks using 1 wood")
		}
		if hasPlanks && hasStick {
			add("craft 1 wooden_pickaxe using 3 planks, 2 stick")
		}
	}

	for i, cmd := range commands {
		if i >= 3 {
			break
		}
		add(cmd)
	}

	goalLower := strings.ToLower(goal)
	if strings.Contains(goalLower, "pickaxe") {
		add("get 1 wood")
		add("craft 1 stick using 1 wood")
	}

	if len(out) > 8 {
		out = out[:8]
	}
	return out
}

func hasItemLike(inv Inventory, fragment string) bool {
	for item := range inv {
		if strings.Contains(item, fragment) {
			return true
		}
	}
	return false
}
