package lifecycle

import (
	"testing"

	"github.com/avfarm/common/constants"
)

func TestIsRetryable(t *testing.T) {
	cases := map[string]bool{
		constants.ErrKindTransferError: true,
		constants.ErrKindEncoderCrash:  true,
		constants.ErrKindStalled:       true,
		constants.ErrKindWorkerOffline: true,
		constants.ErrKindStaleLease:    true,
		constants.ErrKindMalformedSource: false,
		constants.ErrKindDiskFull:        false,
		constants.ErrKindSafeReplaceFailed: false,
		"unknown_kind": false,
	}
	for kind, want := range cases {
		if got := IsRetryable(kind); got != want {
			t.Errorf("IsRetryable(%q) = %v, want %v", kind, got, want)
		}
	}
}

func TestMeetsSavingsFloor(t *testing.T) {
	if !MeetsSavingsFloor(5.0, 5.0) {
		t.Error("expected exactly-at-floor savings to pass")
	}
	if MeetsSavingsFloor(4.9, 5.0) {
		t.Error("expected below-floor savings to fail")
	}
}
