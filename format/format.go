package format

import "fmt"

const (
	Byte     = 1
	KiloByte = Byte * 1000
	MegaByte = KiloByte * 1000
	GigaByte = MegaByte * 1000
)

// HumanBytes renders a byte count in decimal units, one decimal place.
func HumanBytes(b int64) string {
	switch {
	case b >= GigaByte:
		return fmt.Sprintf("%.1f GB", float64(b)/GigaByte)
	case b >= MegaByte:
		return fmt.Sprintf("%.1f MB", float64(b)/MegaByte)
	case b >= KiloByte:
		return fmt.Sprintf("%.1f KB", float64(b)/KiloByte)
	default:
		return fmt.Sprintf("%d B", b)
	}
}

// HumanNumber renders a count with a metric suffix, e.g. parameter counts.
func HumanNumber(n uint64) string {
	const (
		thousand = 1000
		million  = thousand * 1000
		billion  = million * 1000
	)

	switch {
	case n >= billion:
		return fmt.Sprintf("%.1fB", float64(n)/billion)
	case n >= million:
		return fmt.Sprintf("%.1fM", float64(n)/million)
	case n >= thousand:
		return fmt.Sprintf("%.1fK", float64(n)/thousand)
	default:
		return fmt.Sprintf("%d", n)
	}
}
