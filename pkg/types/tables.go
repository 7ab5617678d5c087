package types

import "fmt"

type TableName string

func (s TableName) Name() string {
	return fmt.Sprintf("%s%s", TABLE_PREFIX, s)
}

const TABLE_PREFIX = "docray_"

const (
	TABLE_PAGE            = TableName("pages")
	TABLE_CHUNK           = TableName("chunks")
	TABLE_JOB             = TableName("jobs")
	TABLE_APP_KB          = TableName("app_kbs")
	TABLE_RETRIEVAL_EVENT = TableName("retrieval_events")
)
