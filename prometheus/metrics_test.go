package prometheus

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordRedirect(t *testing.T) {
	before := testutil.ToFloat64(RedirectCounter)
	RecordRedirect()
	assert.Equal(t, before+1, testutil.ToFloat64(RedirectCounter))
}

func TestRecordSearch(t *testing.T) {
	before := testutil.ToFloat64(SearchCounter.WithLabelValues("found"))
	RecordSearch("found")
	assert.Equal(t, before+1, testutil.ToFloat64(SearchCounter.WithLabelValues("found")))
}

func TestRecordOTPSend(t *testing.T) {
	before := testutil.ToFloat64(OTPSendCounter.WithLabelValues("sms"))
	RecordOTPSend("sms")
	assert.Equal(t, before+1, testutil.ToFloat64(OTPSendCounter.WithLabelValues("sms")))
}
