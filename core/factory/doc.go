// Package factory is a generic registry that builds pluggable modules from
// configuration. A module is named by a type string and carries raw settings
// that its factory decodes into a typed struct.
//
// Metrics sinks are registered this way:
//
//	metrics.RegisterMetricsSink("influx", func(conf map[string]any) (metrics.MetricsSink, error) {
//	    var c struct {
//	        URL    string `json:"url"`
//	        Bucket string `json:"bucket"`
//	    }
//	    if err := factory.Decode(conf, &c); err != nil {
//	        return nil, err
//	    }
//	    return newInfluxSink(c.URL, c.Bucket)
//	})
//
// and selected from YAML with
//
//	metrics:
//	  sinks:
//	    - type: influx
//	      conf: {url: "http://influx:8086", bucket: rescue}
package factory
