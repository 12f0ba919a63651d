package geocode

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseQuery(t *testing.T) {
	tests := []struct {
		in   string
		want Query
	}{
		{"  40 Calhoun St, Charleston, SC ", Query{Address: "40 Calhoun St, Charleston, SC"}},
		{"Parked at 40 Calhoun St (behind the library), Charleston, SC", Query{Address: "40 Calhoun St, Charleston, SC"}},
		{"Find us near 1200 Main St.", Query{Address: "1200 Main St"}},
		{"at the corner of King St & Broad St, Charleston, SC", Query{Address: "King St & Broad St, Charleston, SC", Intersection: true}},
		{"Gervais St and Lincoln St, Columbia, SC", Query{Address: "Gervais St & Lincoln St, Columbia, SC", Intersection: true}},
		{"Ontario St, Greenville, SC", Query{Address: "Ontario St, Greenville, SC"}},
		{"Atlantic Ave", Query{Address: "Atlantic Ave"}},
		{"Sandhills Rd, Columbia, SC", Query{Address: "Sandhills Rd, Columbia, SC"}},
		{"(location TBA)", Query{}},
		{"", Query{}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseQuery(tt.in))
		})
	}
}
