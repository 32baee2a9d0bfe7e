package policy

import (
	"strings"

	"github.com/ysjprojects/AgentGym/internal/env"
	"github.com/ysjprojects/AgentGym/internal/parse"
)

var genericFallback = []string{
	"inventory",
	"look around",
	"examine room",
	"wait1",
	"move forward",
}

var (
	beaconFallback = []string{
		"get 1 nether star",
		"get 5 glass",
		"get 3 obsidian",
		"craft 1 beacon using 1 nether star, 5 glass, 3 obsidian",
	}
	planksFallback = []string{
		"get 1 acacia logs",
		"craft 4 acacia planks using 1 acacia logs",
	}
	textcraftFallback = []string{"inventory", "get 1 wood", "get 1 stone", "look around"}
)

// FallbackAction picks a deterministic action for the given round when
// model generation is unavailable. Same observation, round, and kind
// always yield the same action.
func FallbackAction(observation string, round int, kind env.Kind) string {
	obs := strings.ToLower(observation)

	switch kind {
	case env.KindTextCraft:
		if strings.Contains(obs, "craft") || strings.Contains(obs, "minecraft") {
			if goal := parse.ParseGoal(observation); goal != "" {
				g := strings.ToLower(goal)
				if strings.Contains(g, "beacon") {
					return beaconFallback[round%len(beaconFallback)]
				}
				if strings.Contains(g, "planks") {
					return planksFallback[round%len(planksFallback)]
				}
			}
			return textcraftFallback[round%len(textcraftFallback)]
		}
	case env.KindBabyAI:
		if strings.Contains(obs, "door") && strings.Contains(obs, "closed") {
			return "toggle"
		}
		if strings.Contains(obs, "key") {
			return "pickup key"
		}
		if strings.Contains(obs, "ball") {
			return "go to ball"
		}
	case env.KindSciWorld:
		if strings.Contains(obs, "task") {
			return "task"
		}
	}

	return genericFallback[round%len(genericFallback)]
}
