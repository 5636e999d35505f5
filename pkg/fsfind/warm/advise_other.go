//go:build !linux

package warm

import "os"

func adviseSequential(*os.File) {}
