// compileinfoprint is imported by every command for the side effect of
// printing the build description to os.Stderr.
package compileinfoprint

import "github.com/benalric/MetaB-pipeline/compileinfo"

func init() {
	compileinfo.PrintToStdErr()
}
