package focus

import (
	"crypto/rand"
	"math/big"
	"strings"
)

// Unlock phrases are meant to be typed, not pasted: long enough to force
// a deliberate pause, short enough to be readable off the lock screen.
var phraseWords = []string{
	"anchor", "basalt", "candle", "drift", "ember", "fathom",
	"garnet", "harbor", "ingot", "juniper", "kestrel", "lantern",
	"meadow", "nimbus", "orchard", "pebble", "quartz", "russet",
	"saffron", "thicket", "umber", "vellum", "willow", "zenith",
}

// phraseWordCount of 4 gives ~18 bits of entropy, plenty for a friction
// gate that is typed back within the same session.
const phraseWordCount = 4

// GeneratePhrase creates a fresh random unlock phrase, e.g.
// "ember-harbor-quartz-willow". Matching is exact and case-sensitive.
func GeneratePhrase() string {
	words := make([]string, phraseWordCount)
	for i := range words {
		words[i] = phraseWords[randomInt(len(phraseWords))]
	}
	return strings.Join(words, "-")
}

// randomInt returns a cryptographically random int in [0, max).
func randomInt(max int) int {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0
	}
	return int(n.Int64())
}
