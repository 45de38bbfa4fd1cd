package tsdb

import (
	"testing"
	"time"
)

func TestFormatLine(t *testing.T) {
	ts := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		measurement string
		tags        map[string]string
		fields      map[string]float64
		want        string
	}{
		{
			name:        "sorted tags and fields",
			measurement: "rx380",
			tags:        map[string]string{"site": "plant-a", "device": "rx380"},
			fields:      map[string]float64{"voltage_l1": 230.1, "frequency": 50},
			want:        "rx380,device=rx380,site=plant-a frequency=50,voltage_l1=230.1 1773482400000000000",
		},
		{
			name:        "large values without exponent",
			measurement: "rx380",
			fields:      map[string]float64{"total_real_energy": 123456789},
			want:        "rx380 total_real_energy=123456789 1773482400000000000",
		},
		{
			name:        "negative values",
			measurement: "rx380",
			fields:      map[string]float64{"total_power_factor": -0.987},
			want:        "rx380 total_power_factor=-0.987 1773482400000000000",
		},
		{
			name:        "escaped tag values",
			measurement: "rx380 main",
			tags:        map[string]string{"site": "plant a,b=c"},
			fields:      map[string]float64{"v": 1},
			want:        `rx380\ main,site=plant\ a\,b\=c v=1 1773482400000000000`,
		},
		{
			name:        "newlines stripped",
			measurement: "rx380\n",
			tags:        map[string]string{"device": "rx\n380"},
			fields:      map[string]float64{"v": 1},
			want:        "rx380,device=rx380 v=1 1773482400000000000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatLine(tt.measurement, tt.tags, tt.fields, ts)
			if got != tt.want {
				t.Errorf("FormatLine() =\n  %q\nwant\n  %q", got, tt.want)
			}
		})
	}
}
