package system

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

const (
	SessionPrefix       = "ses_"
	FolderPrefix        = "fld_"
	ProjectPrefix       = "prj_"
	ExecutionDiffPrefix = "dif_"
	JobPrefix           = "job_"
)

func GenerateUUID() string {
	return uuid.New().String()
}

func newID() string {
	return strings.ToLower(ulid.Make().String())
}

func GenerateSessionID() string {
	return fmt.Sprintf("%s%s", SessionPrefix, newID())
}

func GenerateFolderID() string {
	return fmt.Sprintf("%s%s", FolderPrefix, newID())
}

func GenerateProjectID() string {
	return fmt.Sprintf("%s%s", ProjectPrefix, newID())
}

func GenerateExecutionDiffID() string {
	return fmt.Sprintf("%s%s", ExecutionDiffPrefix, newID())
}

func GenerateJobID() string {
	return fmt.Sprintf("%s%s", JobPrefix, newID())
}
