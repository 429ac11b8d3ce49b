// Package metering contains accounts, physical and virtual meters, and the
// readings taken from them, including the proportional distribution of a
// bulk meter's consumption across its sub-meters.
package metering
