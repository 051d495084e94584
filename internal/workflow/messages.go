package workflow

// Replies sent to users.
const (
	greetingText           = "Hi! Send me a TikTok URL and I'll send you back the video without the watermark."
	invalidURLText         = "Please provide a valid TikTok URL."
	optionsText            = "Choose your format:\n\n📥 Download Only - Just the video without watermark\n✨ White Format - White background + caption text"
	startingText           = "⏳ Starting download..."
	captionPromptText      = "Video processed! Please send the caption text you want to add to the top of the video.\n\nOr send 'BLANK' to skip adding text."
	uploadingText          = "📤 Uploading to Telegram..."
	videoCaption           = "Here's your video! 🎬"
	tooLargeText           = "⚠️ Video is too large for Telegram (max 50MB). Try a shorter video."
	timedOutText           = "Download timed out. Please try again or try a different video."
	processingTimedOutText = "Processing took too long. Please try again or try a shorter video."
	staleActionText        = "Sorry, something went wrong. Please send the TikTok URL again."
	missingVideoText       = "Sorry, I can't find your video. Please try sending the TikTok URL again."
	errorPrefix            = "Error processing video: "
)

// optionButtons are the choices offered after a valid URL.
var optionButtons = []Button{
	{Text: "Download Only", Data: "download_only"},
	{Text: "White Format", Data: "meta_format"},
}
