// Package producers builds evidence producers from declarative check
// definitions. A check runs one Prometheus or Loki query per summary
// counter and reports the raw query output as its payload.
package producers
