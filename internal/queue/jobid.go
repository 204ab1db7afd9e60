package queue

import (
	"fmt"
	"strconv"
	"strings"
)

const jobIDSeparator = "__"

// JobIdentity is the deduplication key of a review job. Two webhook
// deliveries for the same head SHA of the same MR collapse into one job;
// manual triggers carry their run id and therefore never collapse.
type JobIdentity struct {
	TenantSlug  string
	Provider    string
	ProjectID   string
	MRIID       int
	HeadSHA     string
	ReviewRunID string // empty for webhook-triggered jobs
}

// String renders the canonical job id.
func (j JobIdentity) String() string {
	parts := []string{
		j.TenantSlug,
		j.Provider,
		j.ProjectID,
		strconv.Itoa(j.MRIID),
		j.HeadSHA,
	}
	if j.ReviewRunID != "" {
		parts = append(parts, j.ReviewRunID)
	}
	return strings.Join(parts, jobIDSeparator)
}

// ParseJobID splits a canonical job id back into its identity.
func ParseJobID(id string) (JobIdentity, error) {
	parts := strings.Split(id, jobIDSeparator)
	if len(parts) != 5 && len(parts) != 6 {
		return JobIdentity{}, fmt.Errorf("malformed job id %q", id)
	}

	iid, err := strconv.Atoi(parts[3])
	if err != nil {
		return JobIdentity{}, fmt.Errorf("malformed mr iid in job id %q", id)
	}

	identity := JobIdentity{
		TenantSlug: parts[0],
		Provider:   parts[1],
		ProjectID:  parts[2],
		MRIID:      iid,
		HeadSHA:    parts[4],
	}
	if len(parts) == 6 {
		identity.ReviewRunID = parts[5]
	}
	return identity, nil
}
