package projection

const (
	abbrevThreshold = 10
	abbrevPrefix    = 6
	abbrevSuffix    = 4
	ellipsis        = "…"
)

// Abbreviate shortens identifiers longer than ten characters to their first
// six and last four characters around an ellipsis. Shorter values are
// returned unchanged.
func Abbreviate(id string) string {
	r := []rune(id)
	if len(r) <= abbrevThreshold {
		return id
	}
	return string(r[:abbrevPrefix]) + ellipsis + string(r[len(r)-abbrevSuffix:])
}
