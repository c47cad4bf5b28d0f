package agents

import "hash/fnv"

// labelPool is a fixed pool of short human-readable labels for dynamically
// spawned sub-agents (§4.5). The list is fixed so that the same
// (root_execution_id, spawn index) pair always yields the same label across
// Temporal workflow replays.
var labelPool = []string{
	"Ōme", "Gora", "Maji", "Ebisu", "Ōsaki",
	"Otaru", "Namba", "Tenma", "Mejiro", "Kōenji",
	"Gotanda", "Ryōgoku", "Yūtenji", "Nippori", "Asagaya",
	"Mojikō", "Kottoi", "Taishō", "Yumoto", "Odawara",
	"Enoshima", "Ogikubo", "Ichigaya", "Komazawa", "Todoroki",
	"Obama", "Usa", "Gero", "Ōboke", "Koboke",
	"Naruto", "Zushi", "Fussa", "Oppama", "Pippu",
	"Mashike", "Zōshiki",
	"Nikkō", "Hakone", "Beppu", "Atami", "Wakkanai",
	"Koboro", "Shimonada", "Tadami", "Tsuwano", "Okutama",
	"Nagatoro", "Kazamatsuri", "Chōshi", "Kururi", "Biei",
	"Minobu", "Shimonita",
	"Tama", "Musashi", "Urawa", "Kawagoe", "Hannō",
	"Chichibu", "Takao", "Mitaka", "Kichijōji",
	"Karasuyama", "Ashikaga", "Sasago", "Shimokita", "Kuragano",
}

// SpawnLabel returns a deterministic display label for a sub-agent spawned
// under rootExecutionID at the given spawn index.
func SpawnLabel(rootExecutionID string, index int) string {
	if len(labelPool) == 0 {
		return ""
	}
	hash := fnv32a(rootExecutionID)
	return labelPool[(int(hash)+index)%len(labelPool)]
}

func fnv32a(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}
