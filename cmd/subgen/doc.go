// Command subgen generates SRT subtitles from video files without the desktop
// window. It shares settings, model snapshots and job history with the app.
package main
