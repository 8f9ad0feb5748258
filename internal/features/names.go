package features

import (
	"fmt"
	"strconv"
	"unicode"
)

// Block feature names
const (
	NameMFCCs         = "MFCCs"
	NameSSMs          = "SSMs"
	NameSSMsDiffusion = "SSMsDiffusion"
	NameD2s           = "D2s"
	NameGeodesics     = "Geodesics"
	NameJumpsSS       = "JumpsSS"
	NameCurvsSS       = "CurvsSS"
	NameTorsSS        = "TorsSS"
	NameChromas       = "Chromas"
)

// JumpsName is the velocity-norm feature at curvature scale sigma
func JumpsName(sigma float64) string { return fmt.Sprintf("Jumps%g", sigma) }

// CurvsName is the curvature-norm feature at curvature scale sigma
func CurvsName(sigma float64) string { return fmt.Sprintf("Curvs%g", sigma) }

// TorsName is the torsion-norm feature at curvature scale sigma
func TorsName(sigma float64) string { return fmt.Sprintf("Tors%g", sigma) }

// BaseName strips a trailing scale suffix, so "Curvs40" becomes "Curvs".
// Names without a numeric suffix are returned unchanged.
func BaseName(name string) string {
	for i := 1; i < len(name); i++ {
		if !unicode.IsLetter(rune(name[i-1])) || !isNumberStart(name[i]) {
			continue
		}
		if _, err := strconv.ParseFloat(name[i:], 64); err == nil {
			return name[:i]
		}
	}
	return name
}

func isNumberStart(c byte) bool {
	return c >= '0' && c <= '9'
}
