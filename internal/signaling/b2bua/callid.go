package b2bua

import (
	"crypto/md5"
	"encoding/hex"
	"strconv"
)

// MangleCallID builds the outbound leg's Call-ID per the data model's rule:
// md5(original) + "-b2b_<rnum>" when hideCallID is set, else
// original + "-b2b_<rnum>" verbatim.
func MangleCallID(original string, rnum int, hideCallID bool) string {
	suffix := "-b2b_" + strconv.Itoa(rnum)
	if !hideCallID {
		return original + suffix
	}
	sum := md5.Sum([]byte(original))
	return hex.EncodeToString(sum[:]) + suffix
}
