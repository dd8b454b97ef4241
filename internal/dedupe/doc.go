// Package dedupe keeps a bounded, expiring record of retired keys so that
// identifiers handed out once are not handed out again within the window.
package dedupe
