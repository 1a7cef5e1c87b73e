package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"gorm.io/datatypes"

	"github.com/jdziat/firmware-jobs/pkg/core"
)

var (
	errNested    = errors.New("nested value where a scalar is expected")
	errNoDecimal = errors.New("no decimal number found")
)

// decimalNumber matches the first number in free text such as
// "7.55 bits per byte.".
var decimalNumber = regexp.MustCompile(`(\d+\.?\d*)`)

// Extract projects the fields onto core.ResultFields. Absent counts and
// percentages are zero, absent text is empty. All field errors are
// reported together.
func (f Fields) Extract() (core.ResultFields, error) {
	x := extractor{fields: f}

	res := core.ResultFields{
		ArchitectureVerified: x.text("architecture_verified"),
		OSVerified:           x.text("os_verified"),

		Files:            x.count("files"),
		Directories:      x.count("directories"),
		EntropyValue:     x.entropy("entropy_value"),
		ShellScripts:     x.count("shell_scripts"),
		ShellScriptVulns: x.count("shell_script_vulns"),
		KernelModules:    x.count("kernel_modules"),
		KernelModulesLic: x.count("kernel_modules_lic"),
		InterestingFiles: x.count("interesting_files"),
		PostFiles:        x.count("post_files"),

		Canary:      x.count("canary"),
		CanaryPer:   x.count("canary_per"),
		Relro:       x.count("relro"),
		RelroPer:    x.count("relro_per"),
		NoExec:      x.count("no_exec"),
		NoExecPer:   x.count("no_exec_per"),
		Pie:         x.count("pie"),
		PiePer:      x.count("pie_per"),
		Stripped:    x.count("stripped"),
		StrippedPer: x.count("stripped_per"),
		BinsChecked: x.count("bins_checked"),

		Strcpy:    x.count("strcpy"),
		StrcpyBin: x.blob("strcpy_bin"),

		VersionsIdentified:   x.count("versions_identified"),
		CveHigh:              x.count("cve_high"),
		CveMedium:            x.count("cve_medium"),
		CveLow:               x.count("cve_low"),
		Exploits:             x.count("exploits"),
		MetasploitModules:    x.count("metasploit_modules"),
		Certificates:         x.count("certificates"),
		CertificatesOutdated: x.count("certificates_outdated"),
	}

	if err := errors.Join(x.errs...); err != nil {
		return core.ResultFields{}, err
	}
	return res, nil
}

type extractor struct {
	fields Fields
	errs   []error
}

func (x *extractor) fail(key string, err error) {
	x.errs = append(x.errs, &core.ParseError{Field: key, Err: err})
}

// scalar returns the scalar value for key and whether it is present.
func (x *extractor) scalar(key string) (string, bool) {
	v, ok := x.fields[key]
	if !ok {
		return "", false
	}
	if v.IsNested() {
		x.fail(key, errNested)
		return "", false
	}
	return v.Scalar, true
}

func (x *extractor) text(key string) string {
	s, _ := x.scalar(key)
	return s
}

func (x *extractor) count(key string) int {
	s, ok := x.scalar(key)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		x.fail(key, err)
		return 0
	}
	return n
}

// entropy extracts the first decimal number from free text, stripping a
// trailing period before conversion.
func (x *extractor) entropy(key string) float64 {
	s, ok := x.scalar(key)
	if !ok {
		return 0
	}
	m := decimalNumber.FindString(s)
	if m == "" {
		x.fail(key, fmt.Errorf("%w in %q", errNoDecimal, s))
		return 0
	}
	v, err := strconv.ParseFloat(strings.TrimSuffix(m, "."), 64)
	if err != nil {
		x.fail(key, err)
		return 0
	}
	return v
}

// blob encodes an unbounded nested mapping as one JSON document. An absent
// key encodes as an empty object.
func (x *extractor) blob(key string) datatypes.JSON {
	var payload any = map[string]string{}
	if v, ok := x.fields[key]; ok {
		if v.IsNested() {
			payload = v.Nested
		} else {
			payload = v.Scalar
		}
	}
	b, err := json.Marshal(payload)
	if err != nil {
		x.fail(key, err)
		return nil
	}
	return datatypes.JSON(b)
}
