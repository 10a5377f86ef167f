// Command renderforge renders scene compositions to video or still
// images. It queues render jobs in a local SQLite store, drives a pool of
// rendering-surface sessions through the frame capture loop, and stitches
// the result with ffmpeg. It also serves the video frame extraction
// endpoint used by scenes that embed video.
package main
