package gmail

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRawHeaders(t *testing.T) {
	raw := []byte("From: Bob Example <bob@example.com>\r\n" +
		"To: alice@example.com\r\n" +
		"Subject: Quarterly invoice\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"Please find the invoice attached.\r\n")

	sender, subject := parseRawHeaders(raw)

	assert.Equal(t, "bob@example.com", sender)
	assert.Equal(t, "Quarterly invoice", subject)
}

func TestParseRawHeadersMalformed(t *testing.T) {
	sender, subject := parseRawHeaders([]byte("not a mime message"))

	assert.Empty(t, sender)
	assert.Empty(t, subject)
}
